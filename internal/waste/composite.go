package waste

// ClassScore pairs a class with a probability or confidence in [0,1].
type ClassScore struct {
	Class Class
	Score float64
}

// CompositePattern describes a multi-material item (e.g. a Tetra Pak
// carton) that the single-class model reports as several competing
// classes. When enough of the listed classes fire together the item is
// resolved to one display name and one final bin.
type CompositePattern struct {
	Name string
	// Classes that may fire for this material.
	PossibleClasses []Class
	// Minimum distinct matching classes required.
	MinClasses int
	// Combined confidence across matching classes must reach this.
	CombinedThreshold float64
	// The second-strongest matching class must itself reach this,
	// otherwise a single strong class with trace noise is not a composite.
	MinSecondary float64

	FinalBin    Bin
	DisplayVN   string
	DisplayEN   string
	Instruction string
}

// CompositePatterns are checked in order by CheckComposite.
var CompositePatterns = []CompositePattern{
	{
		Name:              "milk_carton",
		PossibleClasses:   []Class{Cardboard, Plastic, Paper},
		MinClasses:        2,
		CombinedThreshold: 0.85,
		MinSecondary:      0.15,
		FinalBin:          BinRecyclable,
		DisplayVN:         "Hộp đựng sữa/nước",
		DisplayEN:         "beverage_carton",
		Instruction:       "Hộp sữa Tetra Pak: Rửa sạch, làm phẳng và bỏ vào thùng tái chế. Nắp nhựa nên tháo riêng.",
	},
	{
		Name:              "food_container",
		PossibleClasses:   []Class{Plastic, Cardboard},
		MinClasses:        2,
		CombinedThreshold: 0.75,
		MinSecondary:      0.15,
		FinalBin:          BinRecyclable,
		DisplayVN:         "Hộp đựng thức ăn",
		DisplayEN:         "food_container",
		Instruction:       "Hộp đựng thức ăn: Rửa sạch hoàn toàn trước khi bỏ vào thùng tái chế.",
	},
}

// CompositeMatch is the result of a successful pattern check.
type CompositeMatch struct {
	Pattern            CompositePattern
	CombinedConfidence float64
	MatchingClasses    []Class
}

// CheckComposite tests the scored predictions against the composite
// material patterns. Returns nil when no pattern matches.
func CheckComposite(predictions []ClassScore) *CompositeMatch {
	if len(predictions) < 2 {
		return nil
	}

	for _, pattern := range CompositePatterns {
		var matching []Class
		var matchScores []float64
		combined := 0.0
		for _, p := range predictions {
			for _, pc := range pattern.PossibleClasses {
				if p.Class == pc {
					matching = append(matching, p.Class)
					matchScores = append(matchScores, p.Score)
					combined += p.Score
				}
			}
		}

		if len(matching) < pattern.MinClasses {
			continue
		}
		if combined < pattern.CombinedThreshold {
			continue
		}

		// Secondary class must carry meaningful confidence on its own.
		best, second := 0.0, 0.0
		for _, s := range matchScores {
			if s > best {
				best, second = s, best
			} else if s > second {
				second = s
			}
		}
		if second < pattern.MinSecondary {
			continue
		}

		return &CompositeMatch{
			Pattern:            pattern,
			CombinedConfidence: combined,
			MatchingClasses:    matching,
		}
	}
	return nil
}

// AggregateBinScores sums prediction scores per bin and returns the best
// bin with its aggregated confidence.
func AggregateBinScores(predictions []ClassScore) (Bin, float64) {
	scores := map[Bin]float64{}
	for _, p := range predictions {
		scores[BinFor(p.Class)] += p.Score
	}
	best := BinGeneral
	bestScore := 0.0
	for _, b := range Bins {
		if scores[b] > bestScore {
			best = b
			bestScore = scores[b]
		}
	}
	return best, bestScore
}
