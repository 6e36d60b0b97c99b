package attachments

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/blob"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

func setup(t *testing.T) (*Store, *blob.Memory, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	blobs := blob.NewMemory()
	s := NewStore(db, blobs, ParseResolutions("32x32,64x64"), testutil.Logger(t))
	return s, blobs, dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func keys(t *testing.T, blobs *blob.Memory) []string {
	t.Helper()
	infos, err := blobs.List(context.Background(), "attachments/")
	require.NoError(t, err)
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Key
	}
	return out
}

func TestParseResolutions(t *testing.T) {
	got := ParseResolutions("32x32, 64X48,bad,0x10")
	assert.Equal(t, []Resolution{{32, 32}, {64, 48}}, got)
}

func TestFitPreservesAspect(t *testing.T) {
	r := fit(image.Rect(0, 0, 100, 50), Resolution{Width: 32, Height: 32})
	assert.Equal(t, 32, r.Dx())
	assert.Equal(t, 16, r.Dy())
}

func TestUploadImageCreatesThumbnails(t *testing.T) {
	s, blobs, dbc := setup(t)
	project := uint(1)

	atts, err := s.Upload(dbc, []File{{Filename: "shot.PNG", ContentType: "image/png", Content: bytes.NewReader(pngBytes(t, 100, 50))}}, &project, nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	att := atts[0]
	assert.Equal(t, "shot", att.Name)
	assert.Equal(t, "png", att.Extension)
	assert.True(t, strings.HasPrefix(att.BlobKey, "attachments/"))
	assert.False(t, att.Bound())

	stored := keys(t, blobs)
	assert.Len(t, stored, 3)
	assert.Contains(t, stored, stem(att.BlobKey)+"@32x32.png")
	assert.Contains(t, stored, stem(att.BlobKey)+"@64x64.png")

	served, err := s.Open(dbc.Ctx, &att, 30, 30)
	require.NoError(t, err)
	defer served.Body.Close()
	assert.Equal(t, stem(att.BlobKey)+"@32x32.png", served.Info.Key)
	assert.True(t, strings.HasPrefix(served.Disposition, "inline"))

	full, err := s.Open(dbc.Ctx, &att, 0, 0)
	require.NoError(t, err)
	defer full.Body.Close()
	assert.Equal(t, att.BlobKey, full.Info.Key)
}

func TestUploadUndecodableImageKeepsSource(t *testing.T) {
	s, blobs, dbc := setup(t)
	_, err := s.Upload(dbc, []File{{Filename: "broken.png", ContentType: "image/png", Content: strings.NewReader("nope")}}, nil, nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, keys(t, blobs), 1)
}

func TestBindCopiesAlreadyBoundAttachment(t *testing.T) {
	s, blobs, dbc := setup(t)
	caseA := domain.Target{Kind: domain.KindCase, ID: 1}
	caseB := domain.Target{Kind: domain.KindCase, ID: 2}

	atts, err := s.Upload(dbc, []File{{Filename: "log.txt", Content: strings.NewReader("hello")}}, nil, nil, &caseA, 10)
	require.NoError(t, err)
	orig := atts[0]
	assert.Equal(t, []uint{10}, []uint(orig.ContentObjectHistoryIDs))

	bound, err := s.Bind(dbc, &orig, caseB, 20)
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, bound.ID)
	assert.Equal(t, caseB.ID, *bound.ObjectID)
	assert.Equal(t, []uint{20}, []uint(bound.ContentObjectHistoryIDs))
	assert.Len(t, keys(t, blobs), 2)

	reloaded, err := s.Get(dbc, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, caseA.ID, *reloaded.ObjectID)
}

func TestRestoreByVersion(t *testing.T) {
	s, _, dbc := setup(t)
	target := domain.Target{Kind: domain.KindCase, ID: 5}

	first, err := s.Upload(dbc, []File{{Filename: "a.txt", Content: strings.NewReader("a")}}, nil, nil, &target, 1)
	require.NoError(t, err)
	second, err := s.Upload(dbc, []File{{Filename: "b.txt", Content: strings.NewReader("b")}}, nil, nil, &target, 2)
	require.NoError(t, err)
	require.NoError(t, s.Delete(dbc, &first[0]))

	require.NoError(t, s.RestoreByVersion(dbc, target, 1, 3))

	live, err := s.ForTarget(dbc, target)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, first[0].ID, live[0].ID)
	assert.True(t, live[0].HasVersion(3))

	gone, err := s.Get(dbc, second[0].ID)
	require.NoError(t, err)
	assert.True(t, gone.IsDeleted)
}

func TestHardDeleteRemovesThumbnails(t *testing.T) {
	s, blobs, dbc := setup(t)
	atts, err := s.Upload(dbc, []File{{Filename: "img.png", ContentType: "image/png", Content: bytes.NewReader(pngBytes(t, 40, 40))}}, nil, nil, nil, 0)
	require.NoError(t, err)
	other, err := s.Upload(dbc, []File{{Filename: "keep.txt", Content: strings.NewReader("keep")}}, nil, nil, nil, 0)
	require.NoError(t, err)

	require.NoError(t, s.HardDelete(dbc, &atts[0]))
	assert.Equal(t, []string{other[0].BlobKey}, keys(t, blobs))

	_, err = s.Get(dbc, atts[0].ID)
	assert.True(t, apierr.IsCode(err, apierr.CodeNotFound))
}

func TestOpenMissingSourceIsNotFound(t *testing.T) {
	s, blobs, dbc := setup(t)
	atts, err := s.Upload(dbc, []File{{Filename: "x.bin", Content: strings.NewReader("x")}}, nil, nil, nil, 0)
	require.NoError(t, err)
	_, err = blobs.Delete(dbc.Ctx, atts[0].BlobKey)
	require.NoError(t, err)

	_, err = s.Open(dbc.Ctx, &atts[0], 0, 0)
	assert.True(t, apierr.IsCode(err, apierr.CodeNotFound))
}

func TestCloneToRemapsIDs(t *testing.T) {
	s, _, dbc := setup(t)
	src := domain.Target{Kind: domain.KindCase, ID: 1}
	dst := domain.Target{Kind: domain.KindCase, ID: 2}
	atts, err := s.Upload(dbc, []File{{Filename: "a.txt", Content: strings.NewReader("a")}}, nil, nil, &src, 1)
	require.NoError(t, err)

	mapping, err := s.CloneTo(dbc, src, 1, dst, nil, 7)
	require.NoError(t, err)
	newID, ok := mapping[atts[0].ID]
	require.True(t, ok)

	copied, err := s.ForTarget(dbc, dst)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.Equal(t, newID, copied[0].ID)

	served, err := s.Open(dbc.Ctx, &copied[0], 0, 0)
	require.NoError(t, err)
	body, err := io.ReadAll(served.Body)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))
	assert.True(t, strings.HasPrefix(served.Disposition, "attachment"))
}

func TestCloneToSkipsAttachmentsOfOlderVersions(t *testing.T) {
	s, _, dbc := setup(t)
	src := domain.Target{Kind: domain.KindCase, ID: 1}
	dst := domain.Target{Kind: domain.KindCase, ID: 2}
	old, err := s.Upload(dbc, []File{{Filename: "old.txt", Content: strings.NewReader("o")}}, nil, nil, &src, 1)
	require.NoError(t, err)
	cur, err := s.Upload(dbc, []File{{Filename: "new.txt", Content: strings.NewReader("n")}}, nil, nil, &src, 2)
	require.NoError(t, err)

	mapping, err := s.CloneTo(dbc, src, 2, dst, nil, 7)
	require.NoError(t, err)
	assert.NotContains(t, mapping, old[0].ID)
	require.Contains(t, mapping, cur[0].ID)

	copied, err := s.ForTarget(dbc, dst)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.Equal(t, "new.txt", copied[0].Filename)
	assert.True(t, copied[0].HasVersion(7))
}

func TestRewriteReferences(t *testing.T) {
	text := "see ![](/api/v1/attachments/4/) and /attachments/9/ and attachments/4/"
	got := RewriteReferences(text, map[uint]uint{4: 40})
	assert.Equal(t, "see ![](/api/v1/attachments/40/) and /attachments/9/ and attachments/40/", got)
}
