package imageprovider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/originsim/origin-server/internal/state"
)

func TestPreviewImageIsDeterministicForTheSamePath(t *testing.T) {
	store := state.NewStore(nil, 1)
	p := New(store)

	body1, ct1 := p.PreviewImage()
	body2, ct2 := p.PreviewImage()
	require.Equal(t, body1, body2)
	require.Equal(t, "image/jpeg", ct1)
	require.Equal(t, "image/jpeg", ct2)
}

func TestAstroFileServesKnownFileWithRightContentType(t *testing.T) {
	store := state.NewStore(nil, 1)
	p := New(store)

	body, ct, ok := p.AstroFile("M31_Andromeda_Galaxy", "M31_Andromeda_Galaxy_Light.jpg")
	require.True(t, ok)
	require.Equal(t, "image/jpeg", ct)
	require.NotEmpty(t, body)

	body2, ct2, ok2 := p.AstroFile("M31_Andromeda_Galaxy", "M31_Andromeda_Galaxy_Light.tiff")
	require.True(t, ok2)
	require.Equal(t, "image/tiff", ct2)
	require.NotEmpty(t, body2)
}

func TestAstroFileRejectsUnknownDirectoryOrFile(t *testing.T) {
	store := state.NewStore(nil, 1)
	p := New(store)

	_, _, ok := p.AstroFile("Nonexistent", "whatever.jpg")
	require.False(t, ok)

	_, _, ok2 := p.AstroFile("M31_Andromeda_Galaxy", "not_a_real_file.jpg")
	require.False(t, ok2)
}
