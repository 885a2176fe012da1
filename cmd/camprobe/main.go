// Command camprobe drives a quiz camera over its serial link from the
// bench. Commands come from -e or, one per line, from stdin:
//
//	count            index the question file
//	init             power and program the camera
//	q N              print question N
//	ticks N          print the tick count of question N
//	shoot N          photograph the answer to question N
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goburrow/serial"
	"github.com/google/shlex"

	"quizcam-go/services/protocol"
)

var (
	port    = flag.String("port", "/dev/ttyACM0", "Serial device.")
	baud    = flag.Int("baud", 38400, "Baud rate.")
	timeout = flag.Duration("timeout", 5*time.Second, "Read timeout per reply.")
	script  = flag.String("e", "", "Commands separated by ';'. Reads stdin when empty.")
)

func main() {
	flag.Parse()
	p, err := serial.Open(&serial.Config{
		Address:  *port,
		BaudRate: *baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  *timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *port, err)
		os.Exit(1)
	}
	defer p.Close()
	c := protocol.NewClient(p)

	failed := false
	run := func(line string) {
		words, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%q: %v\n", line, err)
			failed = true
			return
		}
		if len(words) == 0 {
			return
		}
		out, err := exec(c, words)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", words[0], err)
			failed = true
			return
		}
		fmt.Println(out)
	}

	if *script != "" {
		for _, line := range strings.Split(*script, ";") {
			run(line)
		}
	} else {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			run(sc.Text())
		}
	}
	if failed {
		os.Exit(1)
	}
}

func exec(c *protocol.Client, words []string) (string, error) {
	arg := func() (int, error) {
		if len(words) != 2 {
			return 0, fmt.Errorf("question number required")
		}
		n, err := strconv.Atoi(words[1])
		if err != nil || n < 0 || n > 255 {
			return 0, fmt.Errorf("bad question number %q", words[1])
		}
		return n, nil
	}

	switch words[0] {
	case "count":
		n, err := c.Count()
		return fmt.Sprintf("%d questions", n), err
	case "init":
		return "initialised", c.Init()
	case "q", "question":
		n, err := arg()
		if err != nil {
			return "", err
		}
		q, err := c.Question(n)
		return strings.TrimRight(q, "\r\n"), err
	case "ticks":
		n, err := arg()
		if err != nil {
			return "", err
		}
		t, err := c.Ticks(n)
		return strconv.Itoa(t), err
	case "shoot":
		n, err := arg()
		if err != nil {
			return "", err
		}
		return "saved", c.Capture(n)
	}
	return "", fmt.Errorf("unknown command")
}
