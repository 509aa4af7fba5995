package annotation

// Range is an interval in seconds. start <= end is not enforced.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// AnnotationData is the payload the front-end sends for one annotation.
type AnnotationData struct {
	FilePath string `json:"filePath"`
	Entire   Range  `json:"entire"`
	Point    Range  `json:"point"`
}

// Label is the persisted form of an annotation. File is the generated
// name of the copy inside the save directory, never the source path.
type Label struct {
	File   string `json:"file"`
	Entire Range  `json:"entire"`
	Point  Range  `json:"point"`
}

// RangeByName returns the entire or point range of a label.
func (l Label) RangeByName(name string) (Range, bool) {
	switch name {
	case "entire", "":
		return l.Entire, true
	case "point":
		return l.Point, true
	}
	return Range{}, false
}
