package tools

// stepGuidance holds the worldbuilding step descriptions handed to the
// generation service when it asks where the user is in the flow.
type stepGuidance struct {
	Step     int    `json:"step"`
	Title    string `json:"title"`
	Guidance string `json:"guidance"`
}

var guidanceTable = []stepGuidance{
	{
		Step:     1,
		Title:    "Cosmology",
		Guidance: "Establish the world's origin, metaphysics, and the forces that shape it. Keep claims broad; later steps will reference them.",
	},
	{
		Step:     2,
		Title:    "Pantheon",
		Guidance: "Define gods and their domains. Each god needs a primary domain distinct from existing gods, an alignment, and a symbol.",
	},
	{
		Step:     3,
		Title:    "Geography",
		Guidance: "Lay out continents, regions, and natural features. Reference cosmological forces from step 1 where relevant.",
	},
	{
		Step:     4,
		Title:    "Species",
		Guidance: "Create the peoples of the world. Lifespans, temperament, and relationships to gods and regions should stay consistent with earlier steps.",
	},
	{
		Step:     5,
		Title:    "Settlements",
		Guidance: "Found cities and towns. Population figures must be plausible and breakdowns must sum to 100 percent. Founding dates must precede dissolution dates.",
	},
	{
		Step:     6,
		Title:    "History",
		Guidance: "Write the timeline of major events. Every named figure or place should exist in the canon; introduce new entities through their own steps first.",
	},
}

// guidanceFor returns the guidance for a step, falling back to the
// nearest defined step when out of range.
func guidanceFor(step int) stepGuidance {
	if step < 1 {
		step = 1
	}
	if step > len(guidanceTable) {
		step = len(guidanceTable)
	}
	return guidanceTable[step-1]
}
