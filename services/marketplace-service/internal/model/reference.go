package model

import "slices"

// AllCategories is the browse wildcard.
const AllCategories = "Tous"

var Categories = []string{
	"Plomberie",
	"Électricité",
	"Ménage",
	"Jardinage",
	"Coiffure",
	"Informatique",
	"Déménagement",
	"Cours Particuliers",
	"Climatisation",
}

// Quartiers are the Libreville neighbourhoods a listing or request can be in.
var Quartiers = []string{
	"Louis",
	"Charbonnages",
	"Nzeng-Ayong",
	"Akanda",
	"Owendo",
	"Centre Ville",
	"Batterie 4",
	"PK8",
	"Glass",
	"Mont-Bouët",
	"Oloumi",
}

func IsCategory(v string) bool { return slices.Contains(Categories, v) }

func IsQuartier(v string) bool { return slices.Contains(Quartiers, v) }
