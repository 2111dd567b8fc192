// Package retroview renders a boot sector inspection screen in the
// terminal: decoded fields on top, validation findings in the middle, a
// hex dump of the raw sector at the bottom. The view is read-only and
// owns nothing but the screen.
package retroview

import (
	"strings"

	"github.com/gdamore/tcell/v2"
)

// View is a fullscreen, static inspection screen. Populate it with Set*
// calls, then Run blocks until the user quits with Q, Esc or Ctrl+C.
type View struct {
	s tcell.Screen

	title    string
	fields   []string
	findings []string
	hexLines []string
	footer   string
}

// New initializes the terminal screen.
func New() (*View, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	return &View{s: s}, nil
}

// Close restores the terminal.
func (v *View) Close() {
	if v.s == nil {
		return
	}
	v.s.Fini()
	v.s = nil
}

// SetTitle sets the centered title bar text.
func (v *View) SetTitle(t string) { v.title = t }

// SetFields sets the decoded-field lines.
func (v *View) SetFields(lines []string) {
	v.fields = append([]string(nil), lines...)
}

// SetFindings sets the validation finding lines.
func (v *View) SetFindings(lines []string) {
	v.findings = append([]string(nil), lines...)
}

// SetHexDump sets the raw sector dump lines.
func (v *View) SetHexDump(lines []string) {
	v.hexLines = append([]string(nil), lines...)
}

// SetFooter sets the bottom status line.
func (v *View) SetFooter(line string) { v.footer = line }

// Run draws the view and handles input until the user quits.
func (v *View) Run() {
	for {
		v.draw()
		switch ev := v.s.PollEvent().(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
				return
			}
			if ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q') {
				return
			}
		case *tcell.EventResize:
			v.s.Sync()
		case nil:
			return
		}
	}
}

func putStr(s tcell.Screen, x, y int, str string) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		if x+i >= w {
			break
		}
		s.SetContent(x+i, y, r, nil, tcell.StyleDefault)
	}
}

func (v *View) draw() {
	v.s.Clear()
	w, h := v.s.Size()
	y := 0

	if v.title != "" {
		putStr(v.s, 0, y, strings.Repeat("═", w))
		putStr(v.s, (w-len(v.title))/2, y, v.title)
		y++
	}

	y = v.section(" Fields ", v.fields, y, h)
	y = v.section(" Findings ", v.findings, y, h)
	y = v.section(" Sector ", v.hexLines, y, h)

	if v.footer != "" && y < h {
		putStr(v.s, 0, h-1, strings.Repeat("─", w))
		putStr(v.s, 2, h-1, " "+v.footer+" ")
	}

	v.s.Show()
}

func (v *View) section(name string, lines []string, y, h int) int {
	if len(lines) == 0 || y >= h {
		return y
	}
	w, _ := v.s.Size()
	putStr(v.s, 0, y, strings.Repeat("─", w))
	putStr(v.s, 2, y, name)
	y++
	for _, line := range lines {
		if y >= h-1 {
			break
		}
		putStr(v.s, 1, y, line)
		y++
	}
	return y
}
