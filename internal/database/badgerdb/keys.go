package badgerdb

import (
	"bytes"
	"errors"
)

const (
	classPrefix = "c/" // c/<class>\x00<image> -> empty
	imagePrefix = "i/" // i/<image> -> JSON array of classes
	keySep      = 0x00
)

var errMalformedKey = errors.New("malformed posting key")

// makePostingKey links a class to an image. The separator keeps "Cat" and
// "Cattle" postings apart.
func makePostingKey(class, imageID string) []byte {
	buf := make([]byte, 0, len(classPrefix)+len(class)+1+len(imageID))
	buf = append(buf, classPrefix...)
	buf = append(buf, class...)
	buf = append(buf, keySep)
	buf = append(buf, imageID...)
	return buf
}

// makeClassPrefix returns the prefix of every posting of class.
func makeClassPrefix(class string) []byte {
	buf := make([]byte, 0, len(classPrefix)+len(class)+1)
	buf = append(buf, classPrefix...)
	buf = append(buf, class...)
	return append(buf, keySep)
}

func makeImageKey(imageID string) []byte {
	return append([]byte(imagePrefix), imageID...)
}

// parsePostingKey splits a posting key into class and image ID.
func parsePostingKey(key []byte) (string, string, error) {
	rest, ok := bytes.CutPrefix(key, []byte(classPrefix))
	if !ok {
		return "", "", errMalformedKey
	}
	class, imageID, ok := bytes.Cut(rest, []byte{keySep})
	if !ok {
		return "", "", errMalformedKey
	}
	return string(class), string(imageID), nil
}
