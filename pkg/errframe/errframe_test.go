package errframe_test

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolgugu/edgeflow/pkg/errframe"
)

func TestRenderProducesValidJPEG(t *testing.T) {
	for _, kind := range []errframe.Kind{errframe.Setup, errframe.Runtime, errframe.Load, errframe.NoSignal} {
		data := errframe.Render(kind, "camera device not found")
		require.NotEmpty(t, data)

		img, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 320, img.Bounds().Dx())
		assert.Equal(t, 240, img.Bounds().Dy())
	}
}

func TestLongDetailIsShortened(t *testing.T) {
	long := string(bytes.Repeat([]byte("x"), 500))
	data := errframe.Render(errframe.Runtime, long)

	_, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
}

func TestEmptyDetail(t *testing.T) {
	data := errframe.Render(errframe.NoSignal, "")
	_, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
}
