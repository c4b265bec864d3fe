package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
)

func TestLayoutRepository(t *testing.T) {
	ctx := context.Background()
	r := NewLayoutRepository()
	l := &layout.Layout{ID: "layout-1", EventID: "event-1", Status: layout.StatusPublished, Name: "Sala Mare"}

	require.NoError(t, r.Create(ctx, l))
	assert.ErrorIs(t, r.Create(ctx, l), layout.ErrLayoutAlreadyPublished)

	got, err := r.GetPublishedByEventID(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, "Sala Mare", got.Name)

	got.Name = "changed"
	again, _ := r.GetByID(ctx, "layout-1")
	assert.Equal(t, "Sala Mare", again.Name)

	_, err = r.GetPublishedByEventID(ctx, "event-2")
	assert.ErrorIs(t, err, layout.ErrLayoutNotFound)

	t.Run("下書きはイベントから引けない", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, &layout.Layout{ID: "draft-1", EventID: "event-3", Status: layout.StatusDraft}))
		_, err := r.GetPublishedByEventID(ctx, "event-3")
		assert.ErrorIs(t, err, layout.ErrLayoutNotFound)
	})

	t.Run("同じイベントに2つ目の公開済み座席表は作れない", func(t *testing.T) {
		second := &layout.Layout{ID: "layout-2", EventID: "event-1", Status: layout.StatusPublished}
		assert.ErrorIs(t, r.Create(ctx, second), layout.ErrLayoutAlreadyPublished)

		got, err := r.GetPublishedByEventID(ctx, "event-1")
		require.NoError(t, err)
		assert.Equal(t, "layout-1", got.ID)
		_, err = r.GetByID(ctx, "layout-2")
		assert.ErrorIs(t, err, layout.ErrLayoutNotFound)
	})
}
