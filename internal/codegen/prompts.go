package codegen

import (
	"fmt"
	"strings"
)

// EnhancePrompt wraps the user's request in instructions tailored to the
// target language, framework and styling. The result is stored alongside the
// generation so users can see exactly what the model was asked.
func EnhancePrompt(prompt, language, framework, styling string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s developer. ", language)
	if framework != "" && framework != "none" {
		fmt.Fprintf(&b, "Using %s framework, ", framework)
	}
	if styling != "" && styling != "none" {
		fmt.Fprintf(&b, "with %s for styling, ", styling)
	}
	fmt.Fprintf(&b, "generate clean, production-ready, well-commented code for the following requirement:\n\n%s\n\n", prompt)

	rules := languageRules(strings.ToLower(language), styling)
	if rules == nil {
		b.WriteString("- Return only the code, no explanations or markdown formatting. ")
		return b.String()
	}

	b.WriteString("Requirements:\n")
	for _, r := range rules {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	return b.String()
}

func languageRules(language, styling string) []string {
	switch language {
	case "html":
		return []string{
			"Use semantic HTML5 elements",
			"Include proper meta tags",
			"Make it responsive",
			"Add inline CSS if styling is 'css', or use Tailwind classes if styling is 'tailwind'",
			"Ensure accessibility (ARIA labels, alt texts)",
			"Return only the HTML code, no explanations",
		}
	case "react", "javascript", "typescript":
		styleRule := "Include CSS-in-JS or separate CSS"
		if styling == "tailwind" {
			styleRule = "Use Tailwind CSS classes for styling"
		}
		return []string{
			"Use modern ES6+ syntax",
			"Include proper imports",
			"Add JSDoc comments for functions",
			"Handle edge cases and errors",
			"Use proper naming conventions",
			"Make components reusable",
			styleRule,
			"Return only the code, no explanations",
		}
	case "python":
		return []string{
			"Follow PEP 8 style guide",
			"Include docstrings",
			"Add type hints where appropriate",
			"Handle exceptions properly",
			"Use meaningful variable names",
			"Return only the Python code, no explanations",
		}
	case "nodejs":
		return []string{
			"Use ES6+ module syntax",
			"Include proper error handling",
			"Add comments for complex logic",
			"Use async/await for asynchronous operations",
			"Follow Node.js best practices",
			"Return only the code, no explanations",
		}
	case "java":
		return []string{
			"Follow Java naming conventions",
			"Include JavaDoc comments",
			"Use proper OOP principles",
			"Handle exceptions appropriately",
			"Make code modular and reusable",
			"Return only the Java code, no explanations",
		}
	case "c":
		return []string{
			"Include necessary headers",
			"Add comments for complex logic",
			"Handle memory properly",
			"Use meaningful variable names",
			"Include main function",
			"Return only the C code, no explanations",
		}
	}
	return nil
}

func fixPrompt(code, errorMessage, language string) string {
	return fmt.Sprintf(`You are an expert %[1]s debugger. The following code has an error:

CODE:
`+"```"+`%[1]s
%[2]s
`+"```"+`

ERROR:
%[3]s

Please analyze the error and provide the corrected code. Return ONLY the fixed code without any explanations, markdown formatting, or additional text.`,
		language, code, errorMessage)
}

func explainPrompt(code, language string) string {
	return fmt.Sprintf(`You are an expert %[1]s developer. Explain the following code in a clear, concise manner. Include:
1. What the code does (overview)
2. How it works (step-by-step)
3. Key concepts or patterns used
4. Any potential improvements

CODE:
`+"```"+`%[1]s
%[2]s
`+"```"+`

Provide a well-structured explanation that a developer can easily understand.`,
		language, code)
}

func optimizePrompt(code, language string) string {
	return fmt.Sprintf(`You are an expert %[1]s developer specializing in code optimization. Analyze and optimize the following code for:
- Performance improvements
- Better readability
- Best practices
- Reduced complexity
- Memory efficiency

ORIGINAL CODE:
`+"```"+`%[1]s
%[2]s
`+"```"+`

Return ONLY the optimized code without explanations or markdown formatting.`,
		language, code)
}

func convertPrompt(code, from, to string) string {
	return fmt.Sprintf(`You are an expert programmer. Convert the following %[1]s code to %[2]s.
Maintain the same functionality and logic. Use %[2]s best practices and idioms.

ORIGINAL %[3]s CODE:
`+"```"+`%[1]s
%[4]s
`+"```"+`

Return ONLY the converted %[2]s code without explanations or markdown formatting.`,
		from, to, strings.ToUpper(from), code)
}
