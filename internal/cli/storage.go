package cli

import (
	"context"
	"fmt"

	"github.com/ganttproject/colloboque/internal/storage"
)

// openStorage connects to the configured Postgres database and makes sure
// the template schema exists.
func openStorage(ctx context.Context, opts *RootOptions) (*storage.Postgres, error) {
	cfg := opts.Config
	var cloner storage.SchemaCloner
	switch cfg.SchemaCloner {
	case "", "procedure":
		cloner = storage.ProcedureCloner{}
	case "ddl":
		cloner = storage.DDLCloner{}
	default:
		return nil, fmt.Errorf("unknown schema cloner %q", cfg.SchemaCloner)
	}

	st, err := storage.Open(ctx, cfg.PostgresDSN(),
		storage.WithCloner(cloner),
		storage.WithTemplateSchema(cfg.TemplateSchema),
	)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureTemplate(ctx, st.DB(), cfg.TemplateSchema); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
