package speech

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
)

// Target languages of the widget.
var (
	Hindi   = language.MustParse("hi-IN")
	English = language.MustParse("en-US")
)

// FallbackRate is the speech rate used when Hindi text is read by an
// English voice.
const FallbackRate float32 = 0.8

// DetectLanguage picks Hindi when text contains Devanagari, English
// otherwise.
func DetectLanguage(text string) language.Tag {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return Hindi
		}
	}
	return English
}

// SelectVoice finds the best installed voice for target: exact tag, then
// same base language, then a voice whose name mentions the language.
func SelectVoice(voices []speechmodel.Voice, target language.Tag) *speechmodel.Voice {
	base, _ := target.Base()

	type tagged struct {
		voice speechmodel.Voice
		tag   language.Tag
		ok    bool
	}
	parsed := make([]tagged, len(voices))
	for i, v := range voices {
		tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(v.Lang), "_", "-"))
		parsed[i] = tagged{voice: v, tag: tag, ok: err == nil}
	}

	pick := func(match func(tagged) bool) *speechmodel.Voice {
		var found *speechmodel.Voice
		for i := range parsed {
			if !match(parsed[i]) {
				continue
			}
			v := parsed[i].voice
			if v.Default {
				return &v
			}
			if found == nil {
				found = &v
			}
		}
		return found
	}

	if v := pick(func(t tagged) bool {
		return t.ok && strings.EqualFold(t.tag.String(), target.String())
	}); v != nil {
		return v
	}

	if v := pick(func(t tagged) bool {
		if !t.ok {
			return false
		}
		b, _ := t.tag.Base()
		return b == base
	}); v != nil {
		return v
	}

	names := languageNames(base)
	return pick(func(t tagged) bool {
		name := strings.ToLower(t.voice.Name)
		for _, n := range names {
			if n != "" && strings.Contains(name, n) {
				return true
			}
		}
		return false
	})
}

func languageNames(base language.Base) []string {
	tag, err := language.Compose(base)
	if err != nil {
		return nil
	}
	return []string{
		strings.ToLower(display.English.Languages().Name(tag)),
		strings.ToLower(display.Self.Name(tag)),
	}
}

// BuildUtterance prepares text for playback over the installed voices.
// Hindi text without a Hindi voice is read by an English voice at
// FallbackRate; when nothing matches Voice stays nil and the platform
// default is used.
func BuildUtterance(text string, voices []speechmodel.Voice) speechmodel.Utterance {
	target := DetectLanguage(text)
	u := speechmodel.Utterance{
		Text:   text,
		Lang:   target.String(),
		Rate:   1,
		Pitch:  1,
		Volume: 1,
	}

	if v := SelectVoice(voices, target); v != nil {
		u.Voice = v
		return u
	}

	if target.String() == Hindi.String() {
		u.Lang = English.String()
		u.Rate = FallbackRate
		u.Voice = SelectVoice(voices, English)
	}
	return u
}
