package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func testJoinSpec() model.JoinSpec {
	return model.JoinSpec{
		ID: "byOwner",
		Keys: []model.JoinKey{
			{Label: "Item", Property: "ownerId"},
			{Label: "Owner", Property: "id"},
		},
	}
}

func TestJoinIndexLinksElementsSharingPropertyValue(t *testing.T) {
	store := newElementStore()
	j := newJoinIndex([]model.JoinSpec{testJoinSpec()})

	item := model.Element{ID: "item1", Labels: []string{"Item"}, Properties: map[string]any{"ownerId": "o1"}}
	owner := model.Element{ID: "owner1", Labels: []string{"Owner"}, Properties: map[string]any{"id": "o1"}}

	store.upsert(item)
	store.upsert(owner)
	j.update(item)
	j.update(owner)

	partners := j.partners("byOwner", "Owner", item, store)
	assert.Len(t, partners, 1)
	assert.Equal(t, "owner1", partners[0].ID)
}

func TestJoinIndexForgetRemovesElementFromPartnerLookup(t *testing.T) {
	store := newElementStore()
	j := newJoinIndex([]model.JoinSpec{testJoinSpec()})

	item := model.Element{ID: "item1", Labels: []string{"Item"}, Properties: map[string]any{"ownerId": "o1"}}
	owner := model.Element{ID: "owner1", Labels: []string{"Owner"}, Properties: map[string]any{"id": "o1"}}
	store.upsert(item)
	store.upsert(owner)
	j.update(item)
	j.update(owner)

	store.remove("owner1")
	j.forget(owner)

	assert.Empty(t, j.partners("byOwner", "Owner", item, store))
}

func TestJoinIndexUnknownJoinIDReturnsNil(t *testing.T) {
	store := newElementStore()
	j := newJoinIndex([]model.JoinSpec{testJoinSpec()})
	item := model.Element{ID: "item1", Labels: []string{"Item"}, Properties: map[string]any{"ownerId": "o1"}}

	assert.Nil(t, j.partners("nope", "Owner", item, store))
}

func TestJoinIndexElementWithoutMatchingKeyYieldsNoPartners(t *testing.T) {
	store := newElementStore()
	j := newJoinIndex([]model.JoinSpec{testJoinSpec()})

	other := model.Element{ID: "x", Labels: []string{"Unrelated"}, Properties: map[string]any{}}
	store.upsert(other)
	j.update(other)

	assert.Empty(t, j.partners("byOwner", "Owner", other, store))
}

func TestJoinIndexExcludesElementItselfFromPartners(t *testing.T) {
	store := newElementStore()
	j := newJoinIndex([]model.JoinSpec{testJoinSpec()})

	item := model.Element{ID: "item1", Labels: []string{"Item"}, Properties: map[string]any{"ownerId": "o1"}}
	store.upsert(item)
	j.update(item)

	assert.Empty(t, j.partners("byOwner", "Item", item, store))
}
