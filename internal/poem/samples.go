package poem

// Samples returns the built-in fixture poems used when no input is given.
func Samples() []Record {
	return []Record{
		{
			ID:      NumberID(1),
			Title:   "静夜思",
			Author:  "李白",
			Dynasty: "唐",
			Content: "床前明月光，疑是地上霜。举头望明月，低头思故乡。",
		},
		{
			ID:      NumberID(2),
			Title:   "春望",
			Author:  "杜甫",
			Dynasty: "唐",
			Content: "国破山河在，城春草木深。感时花溅泪，恨别鸟惊心。烽火连三月，家书抵万金。白头搔更短，浑欲不胜簪。",
		},
	}
}
