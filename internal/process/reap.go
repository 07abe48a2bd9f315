package process

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// encoderBinary and encoderSignatureArgs identify a prior run's encoder
// children by their command line: every ffmpeg invocation the Overlay
// Compositor Builder produces fans out through the tee muxer, which no
// unrelated ffmpeg process on the host is expected to use.
const encoderBinary = "ffmpeg"

var encoderSignatureArgs = []string{"-f", "tee"}

// ReapOrphans scans the OS process table for processes matching the
// appliance's encoder signature and sends them SIGTERM, returning how many
// it signaled. It runs once at startup, before the Supervisor begins
// tracking any process of its own, to clean up children left behind by a
// crashed previous run. It is idempotent: running it again after the first
// pass finds nothing left to signal.
func ReapOrphans(log interface{ Infof(string, ...interface{}) }) (int, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, fmt.Errorf("process: listing processes for orphan scan: %w", err)
	}

	reaped := 0
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || !strings.Contains(name, encoderBinary) {
			continue
		}
		cmdline, err := p.CmdlineSlice()
		if err != nil || !matchesEncoderSignature(cmdline) {
			continue
		}
		if err := p.SendSignal(syscall.SIGTERM); err != nil {
			continue
		}
		reaped++
		if log != nil {
			log.Infof("reaped orphaned encoder process pid=%d", p.Pid)
		}
	}
	return reaped, nil
}

// matchesEncoderSignature reports whether argv carries the encoder
// signature's "-f tee" flag pair: "-f" immediately followed by "tee".
func matchesEncoderSignature(argv []string) bool {
	for i := 0; i+1 < len(argv); i++ {
		if argv[i] == encoderSignatureArgs[0] && argv[i+1] == encoderSignatureArgs[1] {
			return true
		}
	}
	return false
}
