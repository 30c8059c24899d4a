package extract

// Transform maps raw runs to fragments one to one, in order.
func Transform(runs []TextRun) PageFragments {
	out := make(PageFragments, len(runs))
	for i, r := range runs {
		out[i] = TextFragment{
			Text:   r.Str,
			X:      r.Transform[4],
			Y:      r.Transform[5],
			Width:  r.Width,
			Height: r.Height,
		}
	}
	return out
}
