package shell

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pborman/getopt/v2"
)

// builtinIO holds the streams that a builtin command runs with, after
// its redirections have been applied.
type builtinIO struct {
	stdout io.Writer
	stderr io.Writer
}

// builtinFunc implements a builtin command. It returns the command's
// exit status.
type builtinFunc func(sh *Shell, bio builtinIO, args []string) int

type builtin struct {
	name string
	doc  string
	fn   builtinFunc
}

// builtins returns the table of builtin commands, in the order in
// which `help` lists them.
func builtins() []builtin {
	return []builtin{
		{"?", "show this help menu", builtinHelp},
		{"help", "show this help menu", builtinHelp},
		{"exit", "exit the command shell", builtinExit},
		{"pwd", "show the current directory (-P: without symbolic links)", builtinPwd},
		{"cd", "change the current directory to the one given (default: $HOME)", builtinCd},
	}
}

// lookupBuiltin returns the builtin called `name`, if there is one.
func (sh *Shell) lookupBuiltin(name string) (builtin, bool) {
	for _, b := range sh.builtins {
		if b.name == name {
			return b, true
		}
	}
	return builtin{}, false
}

func builtinHelp(sh *Shell, bio builtinIO, _ []string) int {
	for _, b := range sh.builtins {
		fmt.Fprintf(bio.stdout, "%s - %s\n", b.name, b.doc)
	}
	return 0
}

func builtinExit(sh *Shell, _ builtinIO, _ []string) int {
	sh.exiting = true
	return 0
}

func builtinPwd(sh *Shell, bio builtinIO, args []string) int {
	opts := getopt.New()
	opts.Bool('P', "print the physical directory, without symbolic links")
	opts.Bool('L', "print the logical directory (the default)")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	// The last of `-L` and `-P` wins:
	physical := false
	err := opts.Getopt(args, func(o getopt.Option) bool {
		switch o.ShortName() {
		case "P":
			physical = true
		case "L":
			physical = false
		}
		return true
	})
	if err != nil || *helpOpt {
		w := bio.stdout
		if err != nil {
			w = bio.stderr
			sh.diagnose(w, "%s: %v", args[0], err)
		}
		fmt.Fprintln(w, "usage: pwd [-LP]")
		opts.PrintOptions(w)
		if err != nil {
			return 2
		}
		return 0
	}

	dir := sh.dir
	if physical || dir == "" {
		wd, err := os.Getwd()
		if err == nil {
			wd, err = filepath.EvalSymlinks(wd)
		}
		if err != nil {
			sh.diagnose(bio.stderr, "%s: %v", args[0], err)
			return 1
		}
		dir = wd
	}

	fmt.Fprintln(bio.stdout, dir)
	return 0
}

func builtinCd(sh *Shell, bio builtinIO, args []string) int {
	var target string
	switch len(args) {
	case 1:
		target = os.Getenv("HOME")
		if target == "" {
			sh.diagnose(bio.stderr, "%s: HOME not set", args[0])
			return 1
		}
	case 2:
		target = args[1]
	default:
		sh.diagnose(bio.stderr, "%s: too many arguments", args[0])
		return 1
	}

	// Keep track of the directory by the path that was used to get
	// there, symbolic links and all. `..` is resolved against that
	// path, too.
	dir := target
	if !filepath.IsAbs(dir) {
		base := sh.dir
		if base == "" {
			base, _ = os.Getwd()
		}
		dir = filepath.Join(base, dir)
	}
	dir = filepath.Clean(dir)

	if err := os.Chdir(dir); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		sh.diagnose(bio.stderr, "%s: %s: %v", args[0], target, err)
		return 1
	}

	sh.dir = dir
	_ = os.Setenv("PWD", dir)

	return 0
}
