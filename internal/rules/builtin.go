package rules

// builtinRules turns spoken punctuation into symbols.
const builtinRules = `
s/\s*\bquestion mark\b/?/g
s/\s*\bexclamation (mark|point)\b/!/g
s/\s*\bfull stop\b/./g
s/\s*\bcomma\b/,/g
`
