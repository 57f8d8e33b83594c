package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mixtape/mixtape/internal/util/paths"
)

// prompter asks questions on an input/output pair. Commands build one from
// cmd.InOrStdin and cmd.OutOrStdout so tests can script the answers.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// assumeYes answers every confirmation with yes
	assumeYes bool
}

func newPrompter(in io.Reader, out io.Writer, assumeYes bool) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, assumeYes: assumeYes}
}

// readLine returns the next trimmed line. End of input yields "" with no
// error so a closed stdin falls back to defaults.
func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question. Anything but y or yes is no.
func (p *prompter) confirm(question string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	input, err := p.readLine()
	if err != nil {
		return false, err
	}
	input = strings.ToLower(input)
	return input == "y" || input == "yes", nil
}

// promptFileName offers suggested as the stored name. An empty answer keeps
// the suggestion.
func (p *prompter) promptFileName(suggested string) (string, error) {
	if p.assumeYes {
		return suggested, nil
	}
	fmt.Fprintf(p.out, "Save as [%s]: ", suggested)
	input, err := p.readLine()
	if err != nil {
		return "", err
	}
	if input == "" {
		return suggested, nil
	}
	return paths.NormalizeFileName(input), nil
}

// promptOverwrite asks what to do about an existing artifact.
func (p *prompter) promptOverwrite(fileName, locator string) (paths.Decision, error) {
	fmt.Fprintf(p.out, "\nFile '%s' already exists at '%s'.\n", fileName, locator)
	ok, err := p.confirm("Overwrite it?")
	if err != nil {
		return paths.Abort, err
	}
	if ok {
		return paths.Overwrite, nil
	}
	return paths.Abort, nil
}

// sizeMB formats a byte count in megabytes with two decimals.
func sizeMB(n int64) string {
	if n <= 0 {
		return "unknown size"
	}
	return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
}
