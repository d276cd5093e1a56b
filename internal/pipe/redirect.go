package pipe

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sunnytower/psh/internal/syntax"
)

// redirectedFiles holds the files that a stage's redirections opened.
// Either may be nil.
type redirectedFiles struct {
	stdin  afero.File
	stdout afero.File
}

func (f *redirectedFiles) close() {
	if f.stdin != nil {
		_ = f.stdin.Close()
	}
	if f.stdout != nil {
		_ = f.stdout.Close()
	}
}

// validateRedirections checks that every redirection has a target.
func validateRedirections(redirs []syntax.Redirection) error {
	for _, r := range redirs {
		if err := r.Validate(); err != nil {
			return &StageError{
				Kind:   RedirectionSyntax,
				Name:   r.Dir.String(),
				Status: StatusSyntaxError,
				Err:    err,
			}
		}
	}
	return nil
}

// openRedirections opens the targets of `redirs` in `env.Fs`. Only
// the first redirection in each direction counts. Input targets are
// opened read-only; output targets are created if necessary and
// truncated. If any open fails, the files opened so far are closed.
func openRedirections(env Env, redirs []syntax.Redirection) (redirectedFiles, error) {
	var files redirectedFiles
	fs := env.fs()

	for _, r := range redirs {
		path := r.Target
		if env.Dir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(env.Dir, path)
		}

		switch r.Dir {
		case syntax.Input:
			if files.stdin != nil {
				continue
			}
			f, err := fs.Open(path)
			if err != nil {
				files.close()
				return redirectedFiles{}, redirectionError(r.Target, err)
			}
			files.stdin = f

		case syntax.Output:
			if files.stdout != nil {
				continue
			}
			f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
			if err != nil {
				files.close()
				return redirectedFiles{}, redirectionError(r.Target, err)
			}
			files.stdout = f
		}
	}

	return files, nil
}

func redirectionError(name string, err error) error {
	return &StageError{
		Kind:   RedirectionOpenFailed,
		Name:   name,
		Status: StatusRedirectionFailed,
		Err:    err,
	}
}
