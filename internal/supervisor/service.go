package supervisor

import "context"

// Func adapts a Run-style function to suture.Service.
type Func struct {
	Name string
	Run  func(ctx context.Context) error
}

// Service names fn for supervisor logs.
func Service(name string, fn func(ctx context.Context) error) *Func {
	return &Func{Name: name, Run: fn}
}

// Serve implements suture.Service.
func (f *Func) Serve(ctx context.Context) error {
	return f.Run(ctx)
}

// String implements fmt.Stringer for logging.
func (f *Func) String() string {
	return f.Name
}
