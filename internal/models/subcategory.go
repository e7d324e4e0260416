package models

// Subcategory carries the booking and reimbursement traits of an offer family.
type Subcategory struct {
	ID      string
	IsEvent bool
	// IsDigitalDepositCapped offers count against the digital spending cap.
	IsDigitalDepositCapped bool
	IsBook                 bool
	CanExpire              bool
	// Online subcategories are only reimbursed when they are books.
	IsOnline bool
}

var subcategories = map[string]Subcategory{
	"LIVRE_PAPIER":              {ID: "LIVRE_PAPIER", IsBook: true, CanExpire: true},
	"LIVRE_AUDIO_PHYSIQUE":      {ID: "LIVRE_AUDIO_PHYSIQUE", IsBook: true, CanExpire: true},
	"LIVRE_NUMERIQUE":           {ID: "LIVRE_NUMERIQUE", IsBook: true, IsOnline: true, IsDigitalDepositCapped: true},
	"ABO_LIVRE_NUMERIQUE":       {ID: "ABO_LIVRE_NUMERIQUE", IsBook: true, IsOnline: true, IsDigitalDepositCapped: true},
	"SUPPORT_PHYSIQUE_FILM":     {ID: "SUPPORT_PHYSIQUE_FILM", CanExpire: true},
	"SUPPORT_PHYSIQUE_MUSIQUE":  {ID: "SUPPORT_PHYSIQUE_MUSIQUE", CanExpire: true},
	"ABO_PLATEFORME_VIDEO":      {ID: "ABO_PLATEFORME_VIDEO", IsOnline: true, IsDigitalDepositCapped: true},
	"ABO_PLATEFORME_MUSIQUE":    {ID: "ABO_PLATEFORME_MUSIQUE", IsOnline: true, IsDigitalDepositCapped: true},
	"JEU_EN_LIGNE":              {ID: "JEU_EN_LIGNE", IsOnline: true, IsDigitalDepositCapped: true},
	"PODCAST":                   {ID: "PODCAST", IsOnline: true},
	"SEANCE_CINE":               {ID: "SEANCE_CINE", IsEvent: true},
	"CARTE_CINE_MULTISEANCES":   {ID: "CARTE_CINE_MULTISEANCES", CanExpire: true},
	"CONCERT":                   {ID: "CONCERT", IsEvent: true},
	"FESTIVAL_MUSIQUE":          {ID: "FESTIVAL_MUSIQUE", IsEvent: true},
	"SPECTACLE_REPRESENTATION":  {ID: "SPECTACLE_REPRESENTATION", IsEvent: true},
	"VISITE":                    {ID: "VISITE", IsEvent: true},
	"VISITE_VIRTUELLE":          {ID: "VISITE_VIRTUELLE", IsOnline: true},
	"ATELIER_PRATIQUE_ART":      {ID: "ATELIER_PRATIQUE_ART", IsEvent: true},
	"ABO_MUSEE":                 {ID: "ABO_MUSEE", CanExpire: true},
	"ACHAT_INSTRUMENT":          {ID: "ACHAT_INSTRUMENT", CanExpire: true},
	"MATERIEL_ART_CREATIF":      {ID: "MATERIEL_ART_CREATIF", CanExpire: true},
	"ABO_PRATIQUE_ART":          {ID: "ABO_PRATIQUE_ART", CanExpire: true},
	"CONFERENCE":                {ID: "CONFERENCE", IsEvent: true},
	"RENCONTRE_EN_LIGNE":        {ID: "RENCONTRE_EN_LIGNE", IsEvent: true, IsOnline: true},
	"ACTIVATION_THING":          {ID: "ACTIVATION_THING"},
}

// SubcategoryByID returns a zero-trait subcategory for unknown ids.
func SubcategoryByID(id string) Subcategory {
	if s, ok := subcategories[id]; ok {
		return s
	}
	return Subcategory{ID: id}
}
