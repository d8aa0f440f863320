package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusInactive))
	assert.True(t, CanTransition(StatusActive, StatusArchived))
	assert.True(t, CanTransition(StatusInactive, StatusActive))

	assert.False(t, CanTransition(StatusInactive, StatusArchived))
	assert.False(t, CanTransition(StatusArchived, StatusActive), "archive is terminal")
	assert.False(t, CanTransition(StatusActive, StatusDeleted), "delete is not a status change")
	assert.False(t, CanTransition(StatusActive, StatusActive))
}

func TestValidStatusExcludesDeleted(t *testing.T) {
	assert.True(t, ValidStatus(StatusActive))
	assert.True(t, ValidStatus(StatusInactive))
	assert.True(t, ValidStatus(StatusArchived))
	assert.False(t, ValidStatus(StatusDeleted))
	assert.False(t, ValidStatus("NONSENSE"))
}

func TestMarkDeletedAndRestore(t *testing.T) {
	o := &Object{Status: StatusActive}
	at := time.Now().UTC()

	o.MarkDeleted("carol", at)
	assert.True(t, o.Deleted)
	assert.Equal(t, StatusDeleted, o.Status)
	assert.Equal(t, "carol", *o.DeletedBy)
	assert.Equal(t, at, *o.DeletedAt)

	o.Restore()
	assert.False(t, o.Deleted)
	assert.Equal(t, StatusActive, o.Status)
	assert.Nil(t, o.DeletedAt)
	assert.Nil(t, o.DeletedBy)
}

func TestPageRequestNormalize(t *testing.T) {
	p := PageRequest{}.Normalize(1000)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.Size)
	assert.Equal(t, 0, p.Offset())

	p = PageRequest{Page: 3, Size: 50}.Normalize(1000)
	assert.Equal(t, 100, p.Offset())

	p = PageRequest{Page: 1, Size: 5000}.Normalize(1000)
	assert.Equal(t, 1000, p.Size)

	p = PageRequest{Page: -2, Size: -1}.Normalize(1000)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.Size)
}
