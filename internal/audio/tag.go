package audio

import (
	"github.com/bogem/id3v2"
)

// StampMP3 writes ID3v2 tags onto a finished broadcast file so players and
// podcast apps show something sensible.
func StampMP3(path, title, artist, date string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetTitle(title)
	tag.SetArtist(artist)
	if date != "" {
		tag.AddTextFrame("TDRC", tag.DefaultEncoding(), date)
	}

	return tag.Save()
}
