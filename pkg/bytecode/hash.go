package bytecode

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/smilemakc/farmcore/pkg/ir"
)

// HashAST computes a deterministic content hash of an AST, used to bind a
// compiled Program to the expression it was compiled from so a loader can
// detect bytecode that no longer matches its source expression.
func HashAST(n *ir.Node) string {
	var sb strings.Builder
	writeNode(&sb, n)
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func writeNode(sb *strings.Builder, n *ir.Node) {
	if n == nil {
		sb.WriteString("_")
		return
	}
	sb.WriteString(strconv.Itoa(int(n.Op)))
	sb.WriteByte('(')
	switch n.Op {
	case ir.OpLiteral:
		writeLiteral(sb, n.Literal)
	case ir.OpVar:
		sb.WriteString(n.VarPath)
		sb.WriteByte(';')
		writeNode(sb, n.VarDefault)
	default:
		for _, a := range n.Args {
			writeNode(sb, a)
			sb.WriteByte(',')
		}
		sb.WriteByte('|')
		writeNode(sb, n.Source)
		sb.WriteByte(',')
		writeNode(sb, n.Body)
		sb.WriteByte(',')
		writeNode(sb, n.Init)
		sb.WriteByte('|')
		writeNode(sb, n.Count)
		sb.WriteByte(',')
		for _, k := range n.Keys {
			writeNode(sb, k)
			sb.WriteByte(',')
		}
	}
	sb.WriteByte(')')
}

func writeLiteral(sb *strings.Builder, l ir.LiteralValue) {
	switch {
	case l.IsNull:
		sb.WriteString("null")
	case l.IsBool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(l.Bool))
	case l.IsInt:
		sb.WriteString("i:")
		sb.WriteString(strconv.FormatInt(l.Int, 10))
	case l.IsStr:
		sb.WriteString("s:")
		sb.WriteString(l.Str)
	default:
		sb.WriteString("f:")
		sb.WriteString(strconv.FormatFloat(l.Number, 'g', -1, 64))
	}
}
