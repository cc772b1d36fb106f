package confwatcher

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	tmpf, err := os.CreateTemp(os.TempDir(), "confwatcher-")
	require.NoError(t, err)
	_, err = tmpf.Write([]byte("{}"))
	require.NoError(t, err)
	tmpf.Close()
	defer os.Remove(tmpf.Name())

	w, err := New(tmpf.Name())
	require.NoError(t, err)
	defer w.Close()

	func() {
		f, err2 := os.Create(tmpf.Name())
		require.NoError(t, err2)
		defer f.Close()

		_, err2 = f.Write([]byte("{}"))
		require.NoError(t, err2)
	}()

	select {
	case <-w.Watch():
	case <-time.After(500 * time.Millisecond):
		t.Errorf("timed out")
	}
}

func TestMissingFile(t *testing.T) {
	w, err := New("/nonexistent")
	require.NoError(t, err)
	w.Close()
}
