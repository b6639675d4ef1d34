package analysis

// Extraction prompts. Each extraction kind has a fixed instruction; the
// actions and decisions prompts demand a bare JSON document so the parse
// step can validate shape strictly instead of scraping prose.

const systemInstruction = "You are a professional meeting assistant. " +
	"Follow the output format instructions exactly."

const actionsPrompt = `Extract every action item from the meeting transcript below:
tasks to execute, items to follow up on, things to prepare, and commitments made.

For each action item identify, where mentioned:
- the owner responsible
- the due date or deadline
- the priority, judged from tone (high/medium/low)

Transcript:
%s

Reply with JSON only, no other text:
{
  "items": [
    {
      "description": "what needs to be done",
      "owner": "person responsible, or empty if unknown",
      "due": "deadline, or empty if none",
      "priority": "high|medium|low"
    }
  ]
}

If the meeting contains no action items, reply: {"items": []}`

const decisionsPrompt = `Extract every decision reached in the meeting transcript below:
agreements, approvals, rejections, and chosen options.

For each decision capture the rationale when it was stated.

Transcript:
%s

Reply with JSON only, no other text:
{
  "items": [
    {
      "description": "what was decided",
      "rationale": "why, or empty if not stated"
    }
  ]
}

If the meeting contains no decisions, reply: {"items": []}`

const summaryPrompt = `Write a structured summary of the meeting below.

## Transcript (excerpt)
%s

## Extracted action items
%s

## Extracted decisions
%s

Produce Markdown with these sections:

## Topic
(one line, at most 15 words)

## Key points
(3-5 bullet points, 1-2 sentences each)

## Action items
(the extracted items as "- [ ] task @owner (due)")

## Decisions
(the extracted decisions)

Keep a professional, concise tone.`
