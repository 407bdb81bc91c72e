// Package compiler provides a lexer, parser, and LLVM IR code generator for
// the eight-instruction tape language (< > + - . , [ ]).
//
// Pipeline: source → Lex → Parse → Session.Generate → *ir.Module
package compiler
