package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supported = language.NewMatcher([]language.Tag{language.English, language.Indonesian})

func init() {
	set := func(key string, en, id string) {
		_ = message.SetString(language.English, key, en)
		_ = message.SetString(language.Indonesian, key, id)
	}
	set("notice.completed", "Your %s is ready.", "%s kamu sudah siap.")
	set("notice.failed", "Generation failed: %s", "Pembuatan gagal: %s")
	set("notice.cancelled", "Generation cancelled.", "Pembuatan dibatalkan.")
	set("notice.insufficient_credits", "Not enough credits: %d required.", "Kredit tidak cukup: perlu %d.")
	set("notice.unauthorized", "Please sign in to generate content.", "Silakan masuk untuk membuat konten.")
	set("notice.persistence_warning", "Your %s is ready, but it could not be saved to the gallery.", "%s kamu sudah siap, tetapi gagal disimpan ke galeri.")
	set("kind.image", "image", "gambar")
	set("kind.video", "video", "video")
	set("kind.transcript", "transcript", "naskah")
}

// Tag resolves a locale string to a supported language.
func Tag(locale string) language.Tag {
	if _, idx := language.MatchStrings(supported, locale); idx == 1 {
		return language.Indonesian
	}
	return language.English
}

// Render fills n.Text in the notice's locale. cost is only used for
// insufficient-credit notices.
func Render(n Notice, cost int) Notice {
	p := message.NewPrinter(Tag(n.Locale))
	kind := p.Sprintf("kind." + string(n.GenerationKind))
	switch n.Kind {
	case KindCompleted:
		n.Text = p.Sprintf("notice.completed", kind)
	case KindFailed:
		n.Text = p.Sprintf("notice.failed", n.Detail)
	case KindCancelled:
		n.Text = p.Sprintf("notice.cancelled")
	case KindInsufficientCredits:
		n.Text = p.Sprintf("notice.insufficient_credits", cost)
	case KindUnauthorized:
		n.Text = p.Sprintf("notice.unauthorized")
	case KindPersistenceWarning:
		n.Text = p.Sprintf("notice.persistence_warning", kind)
	default:
		n.Text = n.Detail
	}
	return n
}
