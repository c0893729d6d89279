package delivery

import (
	"io"
	"os"
	"testing"

	hlog "holdscribe/internal/log"
)

func TestMain(m *testing.M) {
	hlog.Setup("ERROR", io.Discard)
	os.Exit(m.Run())
}
