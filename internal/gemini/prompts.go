package gemini

// ClassifierSystemInstruction defines the system instruction sent with every
// classification request. The format string expects the language code.
const ClassifierSystemInstruction = `You are the intent classifier of a chatbot. You receive a user utterance written in language %q and a list of candidate intents, each with example utterances.

## TASK
Pick the single intent whose examples best match the meaning of the utterance.

## RULES [CRITICAL]
- Answer only with an intent name taken from the candidate list, or "none" when no candidate fits.
- Judge meaning, not shared words: "book a table" and "reserve a seat at the restaurant" express the same intent.
- Confidence is a number between 0 and 1 describing how sure you are of the choice.
- Never invent intents and never explain your answer.
`

// ClassifierPromptTemplate frames the utterance and the candidates.
// The format string expects the candidates JSON and the utterance.
const ClassifierPromptTemplate = `Candidate intents:
%s

Utterance:
%s
`
