// Package console is the interactive debug shell of the host daemon. It
// exposes the camera and question table one command at a time.
package console

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"quizcam-go/errcode"
	"quizcam-go/services/camera"
	"quizcam-go/services/protocol"
	"quizcam-go/types"
)

// Camera is the engine surface the console drives.
type Camera interface {
	SensorID() (uint16, error)
	PowerOn() error
	PowerOff() error
	Reset() error
	Init() error
	Capture() error
	Save(name string) (int, error)
	Status() types.CameraStatus
	WriteRegister(reg, val byte) error
	ReadRegister(reg byte) (byte, error)
}

var _ Camera = (*camera.Engine)(nil)

type command struct {
	name string
	help string
	run  func(args []string) (string, error)
}

// Console executes debug commands.
type Console struct {
	cam  Camera
	qs   protocol.Questions
	cmds []command
}

func New(cam Camera, qs protocol.Questions) *Console {
	c := &Console{cam: cam, qs: qs}
	c.cmds = []command{
		{"cam_id", "read the sensor product id", c.id},
		{"cam_init", "program the sensor for JPEG capture", c.initSensor},
		{"cam_on", "power the sensor up", c.on},
		{"cam_off", "power the sensor down", c.off},
		{"cam_reset", "pulse the sensor reset line", c.reset},
		{"cam_capture", "capture one frame", c.capture},
		{"cam_save", "NAME: save the captured frame", c.save},
		{"cam_status", "show camera state", c.status},
		{"cam_reg_write", "AA BB: write register AA (hex)", c.regWrite},
		{"cam_reg_read", "AA: read register AA (hex)", c.regRead},
		{"index_qs", "index the question file", c.index},
		{"get_total_qs", "number of indexed questions", c.total},
		{"get_question", "N: print question N", c.question},
		{"mark_question", "N: add a tick to question N", c.mark},
	}
	return c
}

// Names lists the commands in registration order.
func (c *Console) Names() []string {
	out := make([]string, len(c.cmds))
	for i, cmd := range c.cmds {
		out[i] = cmd.name
	}
	return out
}

// Exec runs one command line already split into words.
func (c *Console) Exec(name string, args []string) (string, error) {
	for _, cmd := range c.cmds {
		if cmd.name == name {
			return cmd.run(args)
		}
	}
	return "", &errcode.E{C: errcode.Unsupported, Op: "console", Msg: name}
}

// Shell wraps the console in an ishell instance.
func (c *Console) Shell() *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("quizcam > ")
	for _, cmd := range c.cmds {
		cmd := cmd
		sh.AddCmd(&ishell.Cmd{
			Name: cmd.name,
			Help: cmd.help,
			Func: func(ctx *ishell.Context) {
				out, err := cmd.run(ctx.Args)
				if err != nil {
					ctx.Err(err)
					return
				}
				if out != "" {
					ctx.Println(out)
				}
			},
		})
	}
	return sh
}

// ---- argument parsing ----

func hexArg(args []string, i int) (byte, error) {
	if i >= len(args) || len(args[i]) == 0 || len(args[i]) > 2 {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "console", Msg: "two hex digits expected"}
	}
	v, err := strconv.ParseUint(args[i], 16, 8)
	if err != nil {
		return 0, errcode.Wrap(errcode.InvalidParams, "console", err)
	}
	return byte(v), nil
}

func numArg(args []string) (int, error) {
	if len(args) == 0 || len(args[0]) == 0 || len(args[0]) > 2 {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "console", Msg: "question number expected"}
	}
	v, err := strconv.Atoi(args[0])
	if err != nil || v < 0 {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "console", Msg: args[0]}
	}
	return v, nil
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---- camera ----

func (c *Console) id([]string) (string, error) {
	id, err := c.cam.SensorID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pid=0x%02X ver=0x%02X", byte(id>>8), byte(id)), nil
}

func (c *Console) initSensor([]string) (string, error) {
	err := c.cam.Init()
	mask := c.cam.Status().ErrorMask
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("init ok, errorMask=0x%04X", mask), nil
}

func (c *Console) on([]string) (string, error)    { return "powered on", c.cam.PowerOn() }
func (c *Console) off([]string) (string, error)   { return "powered off", c.cam.PowerOff() }
func (c *Console) reset([]string) (string, error) { return "reset", c.cam.Reset() }

func (c *Console) capture([]string) (string, error) {
	if err := c.cam.Capture(); err != nil {
		return "", err
	}
	return fmt.Sprintf("captured, frames=%d", c.cam.Status().Frames), nil
}

func (c *Console) save(args []string) (string, error) {
	if len(args) != 1 {
		return "", &errcode.E{C: errcode.InvalidParams, Op: "console", Msg: "file name expected"}
	}
	n, err := c.cam.Save(args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("saved %s (%d bytes)", args[0], n), nil
}

func (c *Console) status([]string) (string, error) {
	s := c.cam.Status()
	return fmt.Sprintf("powered=%d init=%d busy=%d captured=%d errorMask=0x%04X captures=%d saves=%d frames=%d",
		bit(s.Powered), bit(s.Initialised), bit(s.Busy), bit(s.Captured),
		s.ErrorMask, s.Captures, s.Saves, s.Frames), nil
}

func (c *Console) regWrite(args []string) (string, error) {
	reg, err := hexArg(args, 0)
	if err != nil {
		return "", err
	}
	val, err := hexArg(args, 1)
	if err != nil {
		return "", err
	}
	if err := c.cam.WriteRegister(reg, val); err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%02X <- 0x%02X", reg, val), nil
}

func (c *Console) regRead(args []string) (string, error) {
	reg, err := hexArg(args, 0)
	if err != nil {
		return "", err
	}
	v, err := c.cam.ReadRegister(reg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%02X = 0x%02X", reg, v), nil
}

// ---- questions ----

func (c *Console) index([]string) (string, error) {
	n, err := c.qs.Index()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d questions", n), nil
}

func (c *Console) total([]string) (string, error) {
	return strconv.Itoa(c.qs.Count()), nil
}

func (c *Console) question(args []string) (string, error) {
	i, err := numArg(args)
	if err != nil {
		return "", err
	}
	r, err := c.qs.Question(i)
	if err != nil {
		return "", err
	}
	return r.Text(), nil
}

func (c *Console) mark(args []string) (string, error) {
	i, err := numArg(args)
	if err != nil {
		return "", err
	}
	stale, err := c.qs.Mark(i)
	if err != nil {
		return "", err
	}
	ticks, _ := c.qs.TickCount(i)
	return fmt.Sprintf("question %d ticks=%d (re-index before reading %d+)", i, ticks, stale), nil
}
