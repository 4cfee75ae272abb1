package recorder

import (
	"encoding/binary"

	"github.com/Carmen-Shannon/prism/engine/rhi"
)

// Op names a recorded command.
type Op string

const (
	OpBarrier             Op = "barrier"
	OpCopy                Op = "copy"
	OpUpload              Op = "upload"
	OpClearBuffer         Op = "clear-buffer"
	OpBindPipeline        Op = "bind-pipeline"
	OpBindDescriptors     Op = "bind-descriptors"
	OpBindVertexBuffer    Op = "bind-vertex-buffer"
	OpBindIndexBuffer     Op = "bind-index-buffer"
	OpDraw                Op = "draw"
	OpDrawIndirectCount   Op = "draw-indexed-indirect-count"
	OpDispatch            Op = "dispatch"
	OpBeginRendering      Op = "begin-rendering"
	OpEndRendering        Op = "end-rendering"
	OpSetViewport         Op = "set-viewport"
	OpSetScissors         Op = "set-scissors"
	OpSetStencilReference Op = "set-stencil-reference"
)

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op        Op
	Barriers  []rhi.Barrier
	Buffer    rhi.Buffer
	Source    rhi.Buffer
	Offset    uint64
	SrcOffset uint64
	Size      uint64
	Data      []byte
	Pipeline  rhi.Pipeline
	FirstSet  uint32
	Sets      []rhi.DescriptorSet
	Counts    [4]uint32
	Rendering *rhi.RenderingInfo
	Viewport  rhi.Viewport
	Rects     []rhi.Rect
}

// CommandList records commands in memory.
type CommandList struct {
	resource
	commands []Command
	pipeline *Pipeline
	sets     []rhi.DescriptorSet
}

var _ rhi.CommandList = &CommandList{}

// Commands returns every recorded command in order.
func (c *CommandList) Commands() []Command { return c.commands }

// Count returns how many commands with op were recorded.
func (c *CommandList) Count(op Op) int {
	n := 0
	for _, cmd := range c.commands {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

// Filter returns the recorded commands with op in order.
func (c *CommandList) Filter(op Op) []Command {
	var out []Command
	for _, cmd := range c.commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}

func (c *CommandList) push(cmd Command) {
	c.commands = append(c.commands, cmd)
}

func (c *CommandList) Barrier(barriers ...rhi.Barrier) {
	c.push(Command{Op: OpBarrier, Barriers: append([]rhi.Barrier(nil), barriers...)})
}

func (c *CommandList) Copy(dst rhi.Buffer, dstOffset uint64, src rhi.Buffer, srcOffset, size uint64) {
	if d, ok := dst.(*Buffer); ok {
		if s, ok := src.(*Buffer); ok {
			copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		}
	}
	c.push(Command{Op: OpCopy, Buffer: dst, Offset: dstOffset, Source: src, SrcOffset: srcOffset, Size: size})
}

func (c *CommandList) Upload(dst rhi.Buffer, offset uint64, data []byte) {
	if d, ok := dst.(*Buffer); ok {
		copy(d.data[offset:], data)
	}
	c.push(Command{Op: OpUpload, Buffer: dst, Offset: offset, Size: uint64(len(data)), Data: append([]byte(nil), data...)})
}

func (c *CommandList) ClearBuffer(dst rhi.Buffer, offset, size uint64) {
	if d, ok := dst.(*Buffer); ok {
		clear(d.data[offset : offset+size])
	}
	c.push(Command{Op: OpClearBuffer, Buffer: dst, Offset: offset, Size: size})
}

func (c *CommandList) BindPipeline(p rhi.Pipeline) {
	c.pipeline, _ = p.(*Pipeline)
	c.push(Command{Op: OpBindPipeline, Pipeline: p})
}

func (c *CommandList) BindDescriptors(firstSet uint32, sets ...rhi.DescriptorSet) {
	need := int(firstSet) + len(sets)
	if len(c.sets) < need {
		c.sets = append(c.sets, make([]rhi.DescriptorSet, need-len(c.sets))...)
	}
	copy(c.sets[firstSet:], sets)
	c.push(Command{Op: OpBindDescriptors, FirstSet: firstSet, Sets: append([]rhi.DescriptorSet(nil), sets...)})
}

func (c *CommandList) BindVertexBuffer(slot uint32, buf rhi.Buffer, offset uint64) {
	c.push(Command{Op: OpBindVertexBuffer, Buffer: buf, Offset: offset, Counts: [4]uint32{slot}})
}

func (c *CommandList) BindIndexBuffer(buf rhi.Buffer, offset uint64, format rhi.IndexFormat) {
	c.push(Command{Op: OpBindIndexBuffer, Buffer: buf, Offset: offset, Counts: [4]uint32{uint32(format)}})
}

func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.push(Command{Op: OpDraw, Pipeline: c.boundPipeline(), Counts: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (c *CommandList) DrawIndexedIndirectCount(args rhi.Buffer, argsOffset uint64, stride uint32, count rhi.Buffer, countOffset uint64, maxCount uint32) {
	c.push(Command{
		Op:        OpDrawIndirectCount,
		Pipeline:  c.boundPipeline(),
		Buffer:    args,
		Offset:    argsOffset,
		Source:    count,
		SrcOffset: countOffset,
		Counts:    [4]uint32{stride, maxCount},
	})
}

func (c *CommandList) Dispatch(x, y, z uint32) {
	c.push(Command{Op: OpDispatch, Pipeline: c.boundPipeline(), Sets: append([]rhi.DescriptorSet(nil), c.sets...), Counts: [4]uint32{x, y, z}})
	if c.dev != nil && c.dev.OnDispatch != nil && c.pipeline != nil {
		c.dev.OnDispatch(c.pipeline, c.sets, x, y, z)
	}
}

func (c *CommandList) BeginRendering(info rhi.RenderingInfo) {
	c.sets = c.sets[:0]
	c.push(Command{Op: OpBeginRendering, Rendering: &info})
}

func (c *CommandList) EndRendering() {
	c.push(Command{Op: OpEndRendering})
}

func (c *CommandList) SetViewport(v rhi.Viewport) {
	c.push(Command{Op: OpSetViewport, Viewport: v})
}

func (c *CommandList) SetScissors(rects ...rhi.Rect) {
	c.push(Command{Op: OpSetScissors, Rects: append([]rhi.Rect(nil), rects...)})
}

func (c *CommandList) SetStencilReference(ref uint32) {
	c.push(Command{Op: OpSetStencilReference, Counts: [4]uint32{ref}})
}

func (c *CommandList) boundPipeline() rhi.Pipeline {
	if c.pipeline == nil {
		return nil
	}
	return c.pipeline
}

// ReadUint32 reads a little endian uint32 from a recorder buffer. Used to inspect count buffers.
func ReadUint32(buf rhi.Buffer, offset uint64) uint32 {
	b, ok := buf.(*Buffer)
	if !ok || offset+4 > uint64(len(b.data)) {
		return 0
	}
	return binary.LittleEndian.Uint32(b.data[offset:])
}
