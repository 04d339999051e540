package mcpserver

// ItemIDFormatContract describes how item identifiers are composed so LLM
// consumers can read and produce them correctly.
const ItemIDFormatContract = `# Plantops Item Identifier Format

Every catalog item is keyed by an identifier built from five segments joined
with underscores:

` + "```" + `
{type}_{line}_{inch}_{tag}_L{lengthMm}
` + "```" + `

## Segments

1. **type**: a code from the ` + "`" + `types` + "`" + ` master vocabulary.
2. **line**: a code from the ` + "`" + `lines` + "`" + ` master vocabulary.
3. **inch**: the nominal size, rendered as a plain number. Whole numbers have
   no decimal point (` + "`" + `10` + "`" + `); fractional sizes keep theirs (` + "`" + `0.5` + "`" + `).
4. **tag**: the tag of the chosen process from the ` + "`" + `processes` + "`" + ` vocabulary.
   Never the process code itself. Look it up with ` + "`" + `get_process_tag` + "`" + `.
5. **L{lengthMm}**: the letter L followed by the length in whole millimetres.

## Rules

- Only enabled vocabulary entries may be used (` + "`" + `list_masters` + "`" + ` shows them).
- Codes and tags never contain an underscore.
- A process without a tag cannot be used to name an item.
- Identifiers are unique; creating an existing item fails.

## Example

Type ` + "`" + `PIPE` + "`" + `, line ` + "`" + `L1` + "`" + `, 10 inch, process ` + "`" + `FOAM` + "`" + ` (tag ` + "`" + `F` + "`" + `),
6000 mm long:

` + "```" + `
PIPE_L1_10_F_L6000
` + "```" + `
`
