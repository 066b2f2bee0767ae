package assets

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
	"github.com/Den107/gulp-plus-webpack/pkg/posix"
)

// Clean removes the output directory. A missing directory is not an error.
func (p *Project) Clean(ctx context.Context) error {
	dist := p.Dist()
	if dist == p.Root || dist == p.Src() {
		return eris.Errorf("refusing to delete %s", dist)
	}

	buildsys.Log(ctx).Debug().Str("path", dist).Msg("removing")
	return eris.Wrap(posix.Remove([]string{dist}, true, true), "failed to clean the output directory")
}
