package model

// Context is the accumulated output of a workflow's completed steps.
// It is additive only: a later step never removes or overwrites keys an
// earlier step wrote.
type Context map[string]any

// Merge applies step output to the context, skipping keys that already
// exist. It returns the keys that were skipped so the caller can log them.
func (c Context) Merge(updates map[string]any) []string {
	var skipped []string
	for k, v := range updates {
		if _, exists := c[k]; exists {
			skipped = append(skipped, k)
			continue
		}
		c[k] = v
	}
	return skipped
}

// Clone returns a shallow copy of the context.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String returns the value for key as a string, or "" if the key is absent
// or not a string.
func (c Context) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}
