// Package lens defines the catalog of analytical frameworks the engine can
// apply to a message, and maps relationship context modes onto ordered sets
// of active lenses.
package lens

import "fmt"

// ID identifies a lens. Ids are globally unique and fixed at build time.
type ID string

const (
	NVC                   ID = "nvc"
	Gottman               ID = "gottman"
	Attachment            ID = "attachment"
	DramaTriangle         ID = "dramaTriangle"
	Narrative             ID = "narrative"
	CognitiveDistortions  ID = "cognitiveDistortions"
	AttributionBias       ID = "attributionBias"
	Power                 ID = "power"
	SystemsTheory         ID = "systemsTheory"
	FaceWork              ID = "faceWork"
	TransactionalAnalysis ID = "transactionalAnalysis"
	InterestsPositions    ID = "interestsPositions"
	ConflictStyle         ID = "conflictStyle"
	Restorative           ID = "restorative"
)

// Category groups lenses by the kind of signal they read.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryRelational    Category = "relational"
	CategoryCognitive     Category = "cognitive"
	CategorySystemic      Category = "systemic"
	CategoryResolution    Category = "resolution"
)

// Tier separates the always-on frameworks from the mode-dependent ones.
type Tier string

const (
	TierCore      Tier = "core"
	TierSecondary Tier = "secondary"
)

// Lens is one analytical framework. PromptFragment is spliced into the
// system prompt; ResponseSchemaFragment describes the JSON entry the model
// should emit for this lens inside the envelope's lenses object.
type Lens struct {
	ID                     ID
	Name                   string
	Category               Category
	Tier                   Tier
	PromptFragment         string
	ResponseSchemaFragment string
}

var byID map[ID]Lens

func init() {
	byID = make(map[ID]Lens, len(catalog))
	for _, l := range catalog {
		if _, dup := byID[l.ID]; dup {
			panic(fmt.Sprintf("lens: duplicate id %q in catalog", l.ID))
		}
		byID[l.ID] = l
	}
}

// Catalog returns every registered lens in declaration order.
func Catalog() []Lens {
	return append([]Lens(nil), catalog...)
}

// Get looks up a lens by id.
func Get(id ID) (Lens, bool) {
	l, ok := byID[id]
	return l, ok
}
