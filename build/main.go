package main

import (
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/goyek/goyek/v2"
)

const versionPackage = "github.com/oshokin/upkeep/internal/version"

func run(a *goyek.A, name string, args ...string) {
	a.Helper()

	a.Log(name, " ", strings.Join(args, " "))

	cmd := exec.CommandContext(a.Context(), name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

// commit returns the short SHA of HEAD, or "none" outside a checkout.
func commit(a *goyek.A) string {
	out, err := exec.CommandContext(a.Context(), "git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "none"
	}

	return strings.TrimSpace(string(out))
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "go", "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run all tests with the race detector",
	Deps:  goyek.Deps{vet},
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-race", "-count=1", "./...")
	},
})

var build = goyek.Define(goyek.Task{
	Name:  "build",
	Usage: "Build the upkeep binary with version information",
	Action: func(a *goyek.A) {
		ldflags := strings.Join([]string{
			"-s", "-w",
			"-X", versionPackage + ".Commit=" + commit(a),
			"-X", versionPackage + ".BuildTime=" + time.Now().UTC().Format(time.RFC3339),
		}, " ")

		run(a, "go", "build", "-trimpath", "-ldflags", ldflags, "-o", "upkeep", "./cmd/upkeep")
	},
})

var _ = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "Vet, test and build",
	Deps:  goyek.Deps{test, build},
})

func main() {
	goyek.SetDefault(build)
	goyek.Main(os.Args[1:])
}
