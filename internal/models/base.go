package models

import (
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// Base carries the document identity shared by every stored model. Embed it
// inline so the ID marshals as the Mongo _id.
type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

// GenIDIfEmpty assigns a fresh ID unless one is already set. Insert paths call
// this right before writing, so retried inserts built from a fresh literal get
// a fresh identity.
func (m *Base) GenIDIfEmpty() {
	if m.ID == (utils.SixID{}) {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}
