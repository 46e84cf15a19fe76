// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
)

// stdinChunk is one read from the local stdin, spec.md §4.9 "stdin
// forwarding": line-buffered by default, raw if -u/Unbuffered.
type stdinChunk struct {
	data []byte
	eof  bool
}

// readStdin reads from src and pushes chunks to out, sending a final
// eof chunk and closing out when src is exhausted.
func readStdin(ctx context.Context, src io.Reader, unbuffered bool, out chan<- stdinChunk) {
	defer close(out)

	if unbuffered {
		buf := make([]byte, 4096)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- stdinChunk{data: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case out <- stdinChunk{eof: true}:
				case <-ctx.Done():
				}
				return
			}
		}
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		line := append(scanner.Bytes(), '\n')
		select {
		case out <- stdinChunk{data: line}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case out <- stdinChunk{eof: true}:
	case <-ctx.Done():
	}
}

// forwardStdin issues the "<service>.stdin" RPC for chunk asynchronously,
// reporting completion on results so the reactor loop never blocks on the
// network, spec.md §4.9.
func (c *Client) forwardStdin(ctx context.Context, r *reactor, chunk stdinChunk, results chan<- error) {
	if c.stdin == nil || r.service == "" {
		return
	}
	if len(chunk.data) > 0 {
		r.stdinSent = true
	}
	ranks := c.cfg.StdinRanks
	if ranks == "" {
		ranks = "all"
	}
	r.pendingStdinRPC++
	go func() {
		err := c.stdin.SendStdin(ctx, r.service, ranks, chunk.data, chunk.eof)
		select {
		case results <- err:
		case <-ctx.Done():
		}
	}()
}

// parseRankSelection expands a -i RANKS spec ("all", a comma list, or
// "a-b" ranges) into a membership set over [0,total), spec.md §6's
// "-i RANKS stdin ranks" flag.
func parseRankSelection(spec string, total int) map[int]bool {
	selected := make(map[int]bool, total)
	if spec == "" || spec == "all" {
		for i := 0; i < total; i++ {
			selected[i] = true
		}
		return selected
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				continue
			}
			for i := start; i <= end; i++ {
				selected[i] = true
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			selected[n] = true
		}
	}
	return selected
}

func itoa(n int) string { return strconv.Itoa(n) }

func joinCSV(parts []string) string { return strings.Join(parts, ",") }
