// Package docmerge fills Word (.docx) templates with data.
//
// A template is an ordinary document containing ${name} placeholders. The
// engine works on the raw XML of the document parts: it joins placeholders
// that the word processor split across runs, substitutes values, clones
// table rows and named blocks, and writes the result into a new file. The
// source template is never modified.
//
// # Quick Start
//
//	tmpl, err := docmerge.Open("invoice.docx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tmpl.Close()
//
//	tmpl.SetValue("customer", "ACME Corp")
//	tmpl.CloneRowAndSetValues("item", []map[string]string{
//	    {"item": "Widget", "price": "19.99"},
//	    {"item": "Gadget", "price": "29.99"},
//	})
//
//	if err := tmpl.SaveAs("invoice-acme.docx"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Template Syntax
//
//	${name}                 - Placeholder
//	${name#2}               - Placeholder in the second clone of a row or block
//	${items}...${/items}    - Block, for CloneBlock, ReplaceBlock and DeleteBlock
//
// A placeholder anywhere in a table row names that row for CloneRow. Each
// copy gets its placeholders renamed to ${name#1}, ${name#2}, and so on, so
// the copies can be filled independently. The '#' character is reserved for
// these suffixes.
//
// # Lifecycle
//
// A template is loaded by Open, modified by the Set, Clone and Block
// methods, and written by Save or SaveAs. After Save the template only
// answers queries; after SaveAs or Close every call fails with
// ErrTemplateClosed.
//
// # Stylesheets
//
// ApplyXSLStyleSheet runs an XSLT 1.0 stylesheet over the main part. The
// default processor is xslt.Native, written in Go; WithXSLTProcessor
// installs another one.
//
// # Configuration
//
// Engines are configured with a Config, from code, from DOCMERGE_*
// environment variables (ConfigFromEnvironment) or from a YAML file
// (LoadConfigFile):
//
//	engine, err := docmerge.New(
//	    docmerge.WithConfig(docmerge.ConfigFromEnvironment()),
//	)
//	tmpl, err := engine.Open("letter.docx")
package docmerge
