//go:build !tinygo

package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/google/shlex"

	"picorom/link"
)

const usage = `usage: picorom <command> [args]

commands:
  list                          Show every attached device.
  upload <name> <file>          Write a ROM image to a device.
  download <name> <file>        Read the served image back.
  commit <name>                 Persist the image and config to flash.
  rename <old> <new>            Change a device name.
  param <name> [key [value]]    List, read or write parameters.
  reset <name> <low|high|z>     Drive the target reset line.
  identify <name>               Blink the device LED.
  comms <name> <addr>           Bridge stdin/stdout to the comms channel.
  monitor <name>                Interactive command shell.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	switch cmd {
	case "list":
		return eachDevice(func(name string, c *client) {
			fmt.Printf("%-24s %s\n", name, c.portName)
		})

	case "upload":
		if len(args) != 2 {
			return errors.New("upload needs a device name and a file")
		}
		return withDevice(args[0], func(c *client) error { return upload(c, args[1]) })

	case "download":
		if len(args) != 2 {
			return errors.New("download needs a device name and a file")
		}
		return withDevice(args[0], func(c *client) error { return download(c, args[1]) })

	case "commit":
		if len(args) != 1 {
			return errors.New("commit needs a device name")
		}
		return withDevice(args[0], commit)

	case "rename":
		if len(args) != 2 {
			return errors.New("rename needs the old and new name")
		}
		return withDevice(args[0], func(c *client) error {
			_, err := c.setParam("name", args[1])
			return err
		})

	case "param":
		if len(args) == 0 {
			return errors.New("param needs a device name")
		}
		return withDevice(args[0], func(c *client) error { return param(c, args[1:]) })

	case "reset":
		if len(args) != 2 {
			return errors.New("reset needs a device name and a level")
		}
		return withDevice(args[0], func(c *client) error {
			_, err := c.setParam("reset", args[1])
			return err
		})

	case "identify":
		if len(args) != 1 {
			return errors.New("identify needs a device name")
		}
		return withDevice(args[0], func(c *client) error {
			return c.send(link.KindIdentify, nil)
		})

	case "comms":
		if len(args) != 2 {
			return errors.New("comms needs a device name and an address")
		}
		addr, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("bad address %q: %w", args[1], err)
		}
		return withDevice(args[0], func(c *client) error {
			return commsBridge(c, uint32(addr))
		})

	case "monitor":
		if len(args) != 1 {
			return errors.New("monitor needs a device name")
		}
		return withDevice(args[0], monitor)
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func withDevice(name string, fn func(*client) error) error {
	c, err := findDevice(name)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func upload(c *client, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 || len(data)&(len(data)-1) != 0 {
		return fmt.Errorf("image size %d is not a power of two (run mkrom first)", len(data))
	}

	if err := c.sendU32(link.KindSetPointer, 0); err != nil {
		return err
	}
	for off := 0; off < len(data); off += link.MaxPayload {
		end := off + link.MaxPayload
		if end > len(data) {
			end = len(data)
		}
		if err := c.send(link.KindWrite, data[off:end]); err != nil {
			return err
		}
	}

	if err := c.send(link.KindGetPointer, nil); err != nil {
		return err
	}
	pkt, err := c.expect(link.KindCurPointer, ioTimeout)
	if err != nil {
		return err
	}
	if ptr := binary.LittleEndian.Uint32(pkt.Payload()); ptr != uint32(len(data)) {
		return fmt.Errorf("upload ended at 0x%x, want 0x%x", ptr, len(data))
	}

	if _, err := c.setParam("addr_mask", fmt.Sprintf("0x%x", len(data)-1)); err != nil {
		return err
	}
	_, err = c.setParam("rom_name", baseName(path))
	return err
}

func download(c *client, path string) error {
	size, err := c.romSize()
	if err != nil {
		return err
	}
	if err := c.sendU32(link.KindSetPointer, 0); err != nil {
		return err
	}

	data := make([]byte, 0, size)
	for uint32(len(data)) < size {
		if err := c.send(link.KindRead, nil); err != nil {
			return err
		}
		pkt, err := c.expect(link.KindReadData, ioTimeout)
		if err != nil {
			return err
		}
		data = append(data, pkt.Payload()...)
	}
	return os.WriteFile(path, data, 0o644)
}

func commit(c *client) error {
	if err := c.send(link.KindCommitFlash, nil); err != nil {
		return err
	}
	// Flash erase of the full image takes a while.
	_, err := c.expect(link.KindCommitDone, 4*ioTimeout)
	return err
}

func param(c *client, args []string) error {
	switch len(args) {
	case 0:
		names, err := c.listParams()
		if err != nil {
			return err
		}
		for _, name := range names {
			value, err := c.getParam(name)
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %s\n", name, value)
		}
		return nil
	case 1:
		value, err := c.getParam(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	case 2:
		value, err := c.setParam(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	}
	return errors.New("param takes at most a key and a value")
}

// commsBridge opens a channel session and splices it onto stdin/stdout
// until interrupted.
func commsBridge(c *client, addr uint32) error {
	if err := c.sendU32(link.KindCommsStart, addr); err != nil {
		return err
	}
	defer c.send(link.KindCommsEnd, nil)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	go func() {
		buf := make([]byte, link.MaxPayload)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if err := c.send(link.KindCommsData, buf[:n]); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-stop:
			return nil
		default:
		}
		pkt, err := c.next(nextDeadline())
		if err != nil {
			if errors.Is(err, errTimeout) {
				continue
			}
			return err
		}
		switch pkt.Kind {
		case link.KindCommsData:
			os.Stdout.Write(pkt.Payload())
		case link.KindDebug, link.KindError:
			fmt.Fprintf(os.Stderr, "[%s] %s\n", pkt.Kind, tagText(&pkt))
		}
	}
}

// monitor reads commands from stdin and runs them against one device.
// Lines are split shell-style, so quoted ROM names work.
func monitor(c *client) error {
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("picorom> ")
		if !sc.Scan() {
			return sc.Err()
		}
		fields, err := shlex.Split(sc.Text())
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := monitorCommand(c, fields[0], fields[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func monitorCommand(c *client, cmd string, args []string) error {
	switch cmd {
	case "upload":
		if len(args) != 1 {
			return errors.New("upload <file>")
		}
		return upload(c, args[0])
	case "download":
		if len(args) != 1 {
			return errors.New("download <file>")
		}
		return download(c, args[0])
	case "commit":
		return commit(c)
	case "param":
		return param(c, args)
	case "reset":
		if len(args) != 1 {
			return errors.New("reset <low|high|z>")
		}
		_, err := c.setParam("reset", args[0])
		return err
	case "identify":
		return c.send(link.KindIdentify, nil)
	case "help":
		fmt.Println("upload download commit param reset identify quit")
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func baseName(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			base = path[i+1:]
			break
		}
	}
	if len(base) >= 32 {
		base = base[:31]
	}
	return base
}
