// Package waste provides shared constants and validation for the waste
// class vocabulary and its mapping onto disposal bins.
package waste

// Class is a canonical (English) waste class name as produced by the
// detection model's label map.
type Class string

// Canonical classes
const (
	Battery    Class = "battery"
	Biological Class = "biological"
	Cardboard  Class = "cardboard"
	Glass      Class = "glass"
	Metal      Class = "metal"
	Paper      Class = "paper"
	Plastic    Class = "plastic"
	Textile    Class = "textile"
	Trash      Class = "trash"
)

// Classes contains all valid class values in sorted order.
var Classes = []Class{
	Battery, Biological, Cardboard, Glass, Metal, Paper, Plastic, Textile, Trash,
}

// Bin is a disposal bin category.
type Bin string

// Bin constants
const (
	BinRecyclable Bin = "recyclable"
	BinOrganic    Bin = "organic"
	BinGeneral    Bin = "general"
	BinHazardous  Bin = "hazardous"
)

// Bins contains all valid bin values.
var Bins = []Bin{BinRecyclable, BinOrganic, BinGeneral, BinHazardous}

// binByClass is the core 9-class to 4-bin mapping table.
var binByClass = map[Class]Bin{
	Cardboard: BinRecyclable,
	Glass:     BinRecyclable,
	Metal:     BinRecyclable,
	Paper:     BinRecyclable,
	Plastic:   BinRecyclable,

	Biological: BinOrganic,

	Textile: BinGeneral,
	Trash:   BinGeneral,

	Battery: BinHazardous,
}

// displayByClass maps canonical classes to the Vietnamese display labels
// emitted by the detection model. These are the model's label strings and
// intentionally carry no diacritics.
var displayByClass = map[Class]string{
	Battery:    "Pin",
	Biological: "Huu co",
	Cardboard:  "Hop giay",
	Glass:      "Thuy tinh",
	Metal:      "Kim loai",
	Paper:      "Giay",
	Plastic:    "Nhua",
	Textile:    "Vai",
	Trash:      "Rac thai",
}

// classByDisplay is the reverse of displayByClass.
var classByDisplay = func() map[string]Class {
	m := make(map[string]Class, len(displayByClass))
	for c, d := range displayByClass {
		m[d] = c
	}
	return m
}()

// binNamesVN maps bins to their Vietnamese display names.
var binNamesVN = map[Bin]string{
	BinRecyclable: "Tái chế",
	BinOrganic:    "Hữu cơ",
	BinGeneral:    "Rác thường",
	BinHazardous:  "Nguy hại",
}

// binInstructions maps bins to disposal guidance shown to the user.
var binInstructions = map[Bin]string{
	BinRecyclable: "Rửa sạch và bỏ vào thùng xanh tái chế",
	BinOrganic:    "Bỏ vào thùng rác hữu cơ (rau củ, thức ăn thừa) để ủ phân compost",
	BinGeneral:    "Bỏ vào thùng rác màu xám",
	BinHazardous:  "Cần xử lý đặc biệt. Đưa đến điểm thu gom rác nguy hại hoặc liên hệ cơ quan môi trường địa phương",
}

// binColors maps bins to the hex colours used by the frontend.
var binColors = map[Bin]string{
	BinRecyclable: "#3b82f6",
	BinOrganic:    "#f59e0b",
	BinGeneral:    "#6b7280",
	BinHazardous:  "#ef4444",
}

// IsValid checks if the given class is in the canonical vocabulary.
func IsValid(c Class) bool {
	_, ok := binByClass[c]
	return ok
}

// BinFor returns the disposal bin for a class. Unknown classes map to the
// general bin rather than erroring so that a model vocabulary drift never
// breaks the hot path.
func BinFor(c Class) Bin {
	if b, ok := binByClass[c]; ok {
		return b
	}
	// Display-form labels resolve through the reverse map first.
	if canonical, ok := classByDisplay[string(c)]; ok {
		return binByClass[canonical]
	}
	return BinGeneral
}

// DisplayName returns the Vietnamese display label for a class, falling
// back to the class name itself for unknown values.
func DisplayName(c Class) string {
	if d, ok := displayByClass[c]; ok {
		return d
	}
	return string(c)
}

// ClassFromDisplay resolves a display label (e.g. "Nhua") back to its
// canonical class. The second return is false for unknown labels.
func ClassFromDisplay(display string) (Class, bool) {
	c, ok := classByDisplay[display]
	return c, ok
}

// Normalize accepts either a canonical class or a display label and
// returns the canonical class. Unknown inputs are returned unchanged so
// callers can still persist what the model reported.
func Normalize(label string) Class {
	if IsValid(Class(label)) {
		return Class(label)
	}
	if c, ok := classByDisplay[label]; ok {
		return c
	}
	return Class(label)
}

// BinInfo describes one bin for API responses.
type BinInfo struct {
	Bin         Bin    `json:"bin_type"`
	NameVN      string `json:"bin_type_vn"`
	Instruction string `json:"bin_instruction"`
	Color       string `json:"bin_color"`
}

// InfoFor returns display information about a bin.
func InfoFor(b Bin) BinInfo {
	return BinInfo{
		Bin:         b,
		NameVN:      binNamesVN[b],
		Instruction: binInstructions[b],
		Color:       binColors[b],
	}
}

// ClassesForBin returns the classes that map into the given bin.
func ClassesForBin(b Bin) []Class {
	var out []Class
	for _, c := range Classes {
		if binByClass[c] == b {
			out = append(out, c)
		}
	}
	return out
}
