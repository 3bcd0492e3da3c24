package models

import (
	"testing"

	"gallery/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func galleryPositions(t *testing.T, galleryID uint64) map[uint64]int {
	t.Helper()
	images, err := GalleryImages(galleryID)
	require.NoError(t, err)
	result := map[uint64]int{}
	for _, img := range images {
		result[img.ID] = img.Position
	}
	return result
}

func TestReorderImages(t *testing.T) {
	gallery := createTestGallery(t, "auth0|owner-reorder")
	a := createTestImage(t, gallery.ID, 0)
	b := createTestImage(t, gallery.ID, 1)
	c := createTestImage(t, gallery.ID, 2)

	require.NoError(t, ReorderImages(gallery, []uint64{c.ID, a.ID, b.ID}))

	positions := galleryPositions(t, gallery.ID)
	assert.Equal(t, 0, positions[c.ID])
	assert.Equal(t, 1, positions[a.ID])
	assert.Equal(t, 2, positions[b.ID])
	assert.EqualValues(t, 1, gallery.Version)
}

func TestReorderImagesStaleVersion(t *testing.T) {
	gallery := createTestGallery(t, "auth0|owner-stale")
	a := createTestImage(t, gallery.ID, 0)
	b := createTestImage(t, gallery.ID, 1)

	// Two tabs loaded version 0; the second reorder must lose
	staleCopy := *gallery
	require.NoError(t, ReorderImages(gallery, []uint64{b.ID, a.ID}))
	err := ReorderImages(&staleCopy, []uint64{a.ID, b.ID})
	assert.ErrorIs(t, err, ErrStaleGallery)

	// The winning order is untouched
	positions := galleryPositions(t, gallery.ID)
	assert.Equal(t, 0, positions[b.ID])
	assert.Equal(t, 1, positions[a.ID])
}

func TestReorderImagesRejectsPartialOrder(t *testing.T) {
	gallery := createTestGallery(t, "auth0|owner-partial")
	a := createTestImage(t, gallery.ID, 0)
	createTestImage(t, gallery.ID, 1)

	err := ReorderImages(gallery, []uint64{a.ID})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleGallery)
}

func TestReorderImagesRejectsForeignImage(t *testing.T) {
	gallery := createTestGallery(t, "auth0|owner-foreign")
	other := createTestGallery(t, "auth0|owner-foreign-2")
	a := createTestImage(t, gallery.ID, 0)
	foreign := createTestImage(t, other.ID, 0)

	err := ReorderImages(gallery, []uint64{foreign.ID})
	assert.Error(t, err)

	// The failed transaction must not leave a version bump behind
	var reloaded Gallery
	require.NoError(t, db.Instance.First(&reloaded, gallery.ID).Error)
	assert.EqualValues(t, 0, reloaded.Version)
	_ = a
}

func TestDeleteImagesCompactsPositions(t *testing.T) {
	gallery := createTestGallery(t, "auth0|owner-compact")
	a := createTestImage(t, gallery.ID, 0)
	b := createTestImage(t, gallery.ID, 1)
	c := createTestImage(t, gallery.ID, 2)
	d := createTestImage(t, gallery.ID, 3)

	removed, err := DeleteImages(gallery, []uint64{b.ID, d.ID})
	require.NoError(t, err)
	require.Len(t, removed, 2)

	positions := galleryPositions(t, gallery.ID)
	assert.Equal(t, 0, positions[a.ID])
	assert.Equal(t, 1, positions[c.ID])
	assert.Equal(t, NextPosition(db.Instance, gallery.ID), 2)
}

func TestNextPositionEmptyGallery(t *testing.T) {
	gallery := createTestGallery(t, "auth0|owner-next")
	assert.Equal(t, 0, NextPosition(db.Instance, gallery.ID))
}

func TestImageKeyAndAspectRatio(t *testing.T) {
	img := Image{ID: 184, GalleryID: 56, OriginalFilename: "Sunset.JPG", Width: 1600, Height: 900}
	assert.Equal(t, "gallery/56/184.jpg", img.GetKey())
	assert.InDelta(t, 16.0/9.0, img.AspectRatio(), 0.001)

	noHeight := Image{Width: 100}
	assert.Zero(t, noHeight.AspectRatio())
}

func TestImageFilenameSanitized(t *testing.T) {
	gallery := createTestGallery(t, "auth0|owner-sanitize")
	img := Image{
		GalleryID:        gallery.ID,
		OriginalFilename: "../etc/passwd file.jpg",
	}
	require.NoError(t, db.Instance.Create(&img).Error)
	assert.Equal(t, "_._etc_passwd_file.jpg", img.OriginalFilename)
}
