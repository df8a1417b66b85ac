package voice

import "strings"

// Voice describes a synthesis voice reported by the device.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	URI     string `json:"uri,omitempty"`
	Default bool   `json:"default,omitempty"`
}

var preferredVoiceNames = []string{"Microsoft Mark", "Google US English"}

// SelectVoice picks the interviewer voice from a catalog: a preferred named
// voice or an English male voice first, then any English voice. It returns
// nil when the device default should be used.
func SelectVoice(voices []Voice) *Voice {
	for i := range voices {
		if isPreferredVoice(voices[i]) {
			v := voices[i]
			return &v
		}
	}
	for i := range voices {
		if strings.Contains(voices[i].Lang, "en") {
			v := voices[i]
			return &v
		}
	}
	return nil
}

func isPreferredVoice(v Voice) bool {
	for _, name := range preferredVoiceNames {
		if strings.Contains(v.Name, name) {
			return true
		}
	}
	return strings.Contains(v.Lang, "en") && strings.Contains(v.Name, "Male")
}
