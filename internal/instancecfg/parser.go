// Package instancecfg parses the bfd_instance keyword-block configuration
// file: the per-session surface, kept deliberately separate from the
// koanf-driven daemon configuration in package config. No library in this
// module's dependency graph speaks this exact keyword/block grammar, so
// this is a small hand-rolled tokenizer and recursive-descent block parser
// built on bufio.Scanner, the way this codebase's lineage writes bespoke
// line-oriented formats when nothing off the shelf fits.
package instancecfg

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/dantte-lp/bfdd/internal/bfd"
)

const (
	maxNameBytes = 31

	minRxMillis  = 1
	maxRxMillis  = 1000
	minTxMillis  = 1
	maxTxMillis  = 1000
	minIdleMs    = 1000
	maxIdleMs    = 10000
	minMultValue = 1
	maxMultValue = 10
)

// Parse reads a bfd_instance keyword-block file from r and returns one
// bfd.Config per block encountered. Malformed blocks are not rejected
// outright: per the keyword table, most errors just disable the affected
// instance rather than failing the whole load, so that one bad block
// never takes every other session down with it.
//
// logger receives a line at Warn for every disabling condition so an
// operator can find the bad block; Parse itself only returns an error for
// conditions that make the file as a whole unreadable (an I/O failure from
// the underlying reader, or a block left unterminated at EOF).
func Parse(r io.Reader, logger *slog.Logger) ([]bfd.Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &parser{
		scanner: bufio.NewScanner(r),
		logger:  logger,
		seen:    make(map[string]int),
	}
	return p.run()
}

type parser struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	lineNo  int
	seen    map[string]int // name -> count, for <DUP-N> renaming
}

func (p *parser) run() ([]bfd.Config, error) {
	var instances []bfd.Config

	for {
		line, ok := p.nextLine()
		if !ok {
			break
		}

		name, ok := parseBlockHeader(line)
		if !ok {
			// Not a recognized root keyword; ignore the line. Blank lines
			// and anything outside a bfd_instance block fall here.
			continue
		}

		block, err := p.collectBlock()
		if err != nil {
			return nil, err
		}

		instances = append(instances, p.buildInstance(name, block))
	}

	if err := p.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read instance config: %w", err)
	}

	return instances, nil
}

// nextLine returns the next non-empty, trimmed line and true, or ("", false)
// at EOF.
func (p *parser) nextLine() (string, bool) {
	for p.scanner.Scan() {
		p.lineNo++
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" {
			continue
		}
		return line, true
	}
	return "", false
}

// parseBlockHeader recognizes "bfd_instance <name> {" or "bfd_instance
// <name>" followed by a brace on its own line is also accepted by
// collectBlock's first read.
func parseBlockHeader(line string) (string, bool) {
	fields := strings.Fields(strings.TrimSuffix(line, "{"))
	if len(fields) < 2 || fields[0] != "bfd_instance" {
		return "", false
	}
	return fields[1], true
}

// collectBlock reads keyword lines until a closing brace, returning the
// raw keyword/argument pairs in order.
func (p *parser) collectBlock() ([]blockLine, error) {
	var lines []blockLine

	for {
		line, ok := p.nextLine()
		if !ok {
			return nil, fmt.Errorf("instance config: unterminated block at EOF")
		}
		if line == "{" {
			continue
		}
		if line == "}" {
			return lines, nil
		}

		fields := strings.Fields(line)
		bl := blockLine{keyword: fields[0]}
		if len(fields) > 1 {
			bl.arg = fields[1]
		}
		lines = append(lines, bl)
	}
}

type blockLine struct {
	keyword string
	arg     string
}

// buildInstance applies the keyword table to one block's lines, producing
// a bfd.Config. Name truncation and duplicate-name handling happen here
// because they depend on state (the running seen-name table) that spans
// blocks.
func (p *parser) buildInstance(rawName string, lines []blockLine) bfd.Config {
	cfg := bfd.Config{
		LocalMinRxInterval:  100 * time.Millisecond,
		LocalMinTxInterval:  100 * time.Millisecond,
		LocalIdleTxInterval: 1 * time.Second,
		LocalDetectMult:     3,
	}

	cfg.Name = p.resolveName(rawName, &cfg)

	for _, bl := range lines {
		switch bl.keyword {
		case "neighbor_ip":
			addr, err := netip.ParseAddr(bl.arg)
			if err != nil {
				p.logger.Warn("instance: malformed neighbor_ip, disabling",
					slog.String("instance", cfg.Name), slog.String("arg", bl.arg))
				cfg.Disabled = true
				continue
			}
			if cfg.NeighborAddr.IsValid() {
				p.logger.Warn("instance: duplicate neighbor_ip, disabling",
					slog.String("instance", cfg.Name))
				cfg.Disabled = true
				continue
			}
			cfg.NeighborAddr = addr

		case "source_ip":
			addr, err := netip.ParseAddr(bl.arg)
			if err != nil {
				p.logger.Warn("instance: malformed source_ip, ignoring",
					slog.String("instance", cfg.Name), slog.String("arg", bl.arg))
				continue
			}
			cfg.SourceAddr = addr

		case "min_rx":
			ms, ok := p.parseRangedInt(cfg.Name, "min_rx", bl.arg, minRxMillis, maxRxMillis)
			if ok {
				cfg.LocalMinRxInterval = time.Duration(ms) * time.Millisecond
			} else {
				cfg.Disabled = true
			}

		case "min_tx":
			ms, ok := p.parseRangedInt(cfg.Name, "min_tx", bl.arg, minTxMillis, maxTxMillis)
			if ok {
				cfg.LocalMinTxInterval = time.Duration(ms) * time.Millisecond
			} else {
				cfg.Disabled = true
			}

		case "idle_tx":
			ms, ok := p.parseRangedInt(cfg.Name, "idle_tx", bl.arg, minIdleMs, maxIdleMs)
			if ok {
				cfg.LocalIdleTxInterval = time.Duration(ms) * time.Millisecond
			} else {
				cfg.Disabled = true
			}

		case "multiplier":
			mult, ok := p.parseRangedInt(cfg.Name, "multiplier", bl.arg, minMultValue, maxMultValue)
			if ok {
				cfg.LocalDetectMult = uint8(mult)
			} else {
				cfg.Disabled = true
			}

		case "disabled":
			cfg.Disabled = true

		default:
			p.logger.Warn("instance: unrecognized keyword, ignoring",
				slog.String("instance", cfg.Name), slog.String("keyword", bl.keyword))
		}
	}

	if !cfg.NeighborAddr.IsValid() {
		p.logger.Warn("instance: no neighbor_ip given, disabling",
			slog.String("instance", cfg.Name))
		cfg.Disabled = true
	}

	return cfg
}

// resolveName truncates names over 31 bytes (disabling the instance) and
// renames collisions to <DUP-N>, also disabling.
func (p *parser) resolveName(rawName string, cfg *bfd.Config) string {
	name := rawName
	if len(name) > maxNameBytes {
		name = name[:maxNameBytes]
		cfg.Disabled = true
		p.logger.Warn("instance: name truncated, disabling",
			slog.String("original", rawName), slog.String("truncated", name))
	}

	p.seen[name]++
	if n := p.seen[name]; n > 1 {
		renamed := fmt.Sprintf("<DUP-%d>", n)
		cfg.Disabled = true
		p.logger.Warn("instance: duplicate name, renaming and disabling",
			slog.String("original", name), slog.String("renamed", renamed))
		return renamed
	}

	return name
}

func (p *parser) parseRangedInt(instance, keyword, arg string, lo, hi int) (int, bool) {
	v, err := strconv.Atoi(arg)
	if err != nil || v < lo || v > hi {
		p.logger.Warn("instance: value out of range, disabling",
			slog.String("instance", instance),
			slog.String("keyword", keyword),
			slog.String("arg", arg),
			slog.Int("min", lo), slog.Int("max", hi))
		return 0, false
	}
	return v, true
}
