package scoring

// Option applies a configuration option to the Formula.
type Option func(*Formula)

// WithCatalog replaces the stage catalog.
func WithCatalog(c Catalog) Option {
	return func(f *Formula) {
		if c != nil {
			f.catalog = c
		}
	}
}
