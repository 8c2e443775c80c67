package summarize

const analystPrompt = "You are an expert analyst of academic papers."

const sectionTemplate = `Write a concise summary (150-250 words) of the following section of an academic paper.

Section title: %s

Section content:
%s

Capture the section's core content, main arguments and key findings.`

const overallTemplate = `Using the section summaries below, write a complete overall summary of the paper (500-800 words).

Paper title: %s

Section summaries:
%s

Cover:
1. Research background and motivation
2. Core method and techniques
3. Main experiments and results
4. Contributions and novelty
5. Limitations and future work

Overall summary:`

const keyPointsTemplate = `Extract 5-8 key points from the following paper summary, one sentence each.

Paper summary:
%s

Key points (as a JSON list of strings):`

const methodologyTemplate = `Summarize the research methodology of the following paper (150-250 words).

Paper content:
%s

Methodology summary:`

const contributionsTemplate = `Summarize the main contributions and novelty of the following paper (150-250 words).

Paper content:
%s

Contributions summary:`
