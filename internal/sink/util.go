package sink

import (
	"bytes"
	"io"
)

func jsonReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}
