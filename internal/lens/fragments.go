package lens

// catalog seeds every lens the engine knows about. Prompt fragments are
// written to the mediator model; schema fragments are concatenated into the
// output-shape instruction (nvc excepted, its shape sits at the root).
var catalog = []Lens{
	{
		ID:       NVC,
		Name:     "Nonviolent Communication",
		Category: CategoryCommunication,
		Tier:     TierCore,
		PromptFragment: `## Nonviolent Communication (always applied)
Separate what was observed from what was evaluated. Identify the feeling
behind the words, the universal need driving that feeling, and the request
the speaker is struggling to make. Surface the subtext (what is meant but
not said), likely blind spots, and unmet needs. Rewrite the message as a
clean NVC translation (observation, feeling, need, request). Rate the
emotional temperature from 0 (calm) to 1 (boiling over).`,
		ResponseSchemaFragment: `"observation": "what was factually observed, stripped of evaluation",
"feeling": "the primary feeling word",
"need": "the universal need underneath",
"request": "the implicit request, stated positively",
"subtext": "what the speaker means but is not saying",
"blindSpots": ["perspective the speaker cannot currently see"],
"unmetNeeds": ["need"],
"nvcTranslation": "the message rewritten in NVC form",
"emotionalTemperature": 0.0`,
	},
	{
		ID:       Gottman,
		Name:     "Gottman Four Horsemen",
		Category: CategoryRelational,
		Tier:     TierCore,
		PromptFragment: `## Gottman Four Horsemen
Check the message for criticism, contempt, defensiveness, and stonewalling.
Only report horsemen that are actually present. For each one present, name
the matching antidote (gentle start-up, building a culture of appreciation,
taking responsibility, physiological self-soothing).`,
		ResponseSchemaFragment: `"gottman": {"horsemen": ["criticism|contempt|defensiveness|stonewalling"], "antidotes": ["matching antidote"], "severity": 0.0}`,
	},
	{
		ID:       Attachment,
		Name:     "Attachment Styles",
		Category: CategoryRelational,
		Tier:     TierSecondary,
		PromptFragment: `## Attachment
Infer whether the message shows anxious, avoidant, disorganized, or secure
attachment activation. Name the old wound being touched, and offer a secure
reframe the speaker could reach for.`,
		ResponseSchemaFragment: `"attachment": {"style": "anxious|avoidant|disorganized|secure", "activatedWound": "the older injury being touched", "secureReframe": "a secure-base restatement"}`,
	},
	{
		ID:       DramaTriangle,
		Name:     "Karpman Drama Triangle",
		Category: CategoryRelational,
		Tier:     TierSecondary,
		PromptFragment: `## Drama Triangle
Identify whether the speaker is occupying persecutor, victim, or rescuer,
and what dynamic that role invites from the other side. Describe the exit
toward creator, challenger, or coach.`,
		ResponseSchemaFragment: `"dramaTriangle": {"role": "persecutor|victim|rescuer", "dynamic": "what the role invites from the other person", "exitPath": "the empowered alternative"}`,
	},
	{
		ID:       Narrative,
		Name:     "Narrative Therapy",
		Category: CategoryCognitive,
		Tier:     TierSecondary,
		PromptFragment: `## Narrative
Name the dominant story the speaker is telling about the relationship and
themselves, a counter-story the same facts support, and an externalization
that separates the person from the problem.`,
		ResponseSchemaFragment: `"narrative": {"dominantStory": "the totalizing story being told", "counterStory": "an alternative story the facts also support", "externalization": "the problem named as separate from the person"}`,
	},
	{
		ID:       CognitiveDistortions,
		Name:     "Cognitive Distortions",
		Category: CategoryCognitive,
		Tier:     TierSecondary,
		PromptFragment: `## Cognitive Distortions
Flag distortions present in the message: all-or-nothing thinking, mind
reading, catastrophizing, overgeneralization ("always"/"never"), labeling,
should statements. Offer one balanced reframe.`,
		ResponseSchemaFragment: `"cognitiveDistortions": {"distortions": ["the distortions present"], "reframe": "a balanced restatement"}`,
	},
	{
		ID:       AttributionBias,
		Name:     "Attribution Bias",
		Category: CategoryCognitive,
		Tier:     TierSecondary,
		PromptFragment: `## Attribution
Note whether the speaker attributes the other's behavior to character
rather than circumstance (fundamental attribution error), and list at least
one situational explanation the speaker has not considered.`,
		ResponseSchemaFragment: `"attributionBias": {"attribution": "the causal story being told", "alternativeExplanations": ["a situational explanation not yet considered"]}`,
	},
	{
		ID:       Power,
		Name:     "Power Dynamics",
		Category: CategorySystemic,
		Tier:     TierSecondary,
		PromptFragment: `## Power
Read the message for power imbalance: who controls resources, framing, or
exit options; whose voice is being silenced or discounted; what would
rebalance the exchange.`,
		ResponseSchemaFragment: `"power": {"imbalance": "where power sits and how it is exercised", "silencedVoice": "what is not being allowed into the conversation", "rebalancing": "a concrete rebalancing move"}`,
	},
	{
		ID:       SystemsTheory,
		Name:     "Family Systems",
		Category: CategorySystemic,
		Tier:     TierSecondary,
		PromptFragment: `## Systems
Describe the repeating interaction pattern this message participates in
(pursue-withdraw, criticize-defend, overfunction-underfunction), the
feedback loop keeping it alive, and the point where one participant could
interrupt the cycle.`,
		ResponseSchemaFragment: `"systemsTheory": {"pattern": "the repeating cycle", "feedbackLoop": "what keeps the cycle going", "interruptionPoint": "where the cycle can be broken"}`,
	},
	{
		ID:       FaceWork,
		Name:     "Face and Politeness",
		Category: CategoryCommunication,
		Tier:     TierSecondary,
		PromptFragment: `## Face
Assess the face threat in the message: is the other's competence, autonomy,
or standing being attacked publicly? Suggest a face-saving path that lets
both parties retreat without humiliation.`,
		ResponseSchemaFragment: `"faceWork": {"threat": "the face threat posed", "faceSaving": "a way for both parties to save face"}`,
	},
	{
		ID:       TransactionalAnalysis,
		Name:     "Transactional Analysis",
		Category: CategoryCommunication,
		Tier:     TierSecondary,
		PromptFragment: `## Transactional Analysis
Identify the ego state the message is sent from (Parent, Adult, Child) and
the state it addresses in the other. Note any crossed transaction, and
phrase an Adult-to-Adult invitation.`,
		ResponseSchemaFragment: `"transactionalAnalysis": {"egoStates": "sender state -> addressed state", "crossedTransaction": "how the transaction crosses, if it does", "adultInvitation": "an Adult-to-Adult restatement"}`,
	},
	{
		ID:       InterestsPositions,
		Name:     "Interests versus Positions",
		Category: CategoryResolution,
		Tier:     TierCore,
		PromptFragment: `## Interests vs Positions
Separate the stated position (what the speaker demands) from the
underlying interests (why they want it). Identify common ground between the
parties' interests that the positions obscure.`,
		ResponseSchemaFragment: `"interestsPositions": {"statedPosition": "the demand as stated", "underlyingInterests": ["the interest beneath the demand"], "commonGround": "shared interest the positions hide"}`,
	},
	{
		ID:       ConflictStyle,
		Name:     "Conflict Style",
		Category: CategoryResolution,
		Tier:     TierSecondary,
		PromptFragment: `## Conflict Style
Classify the speaker's present style: competing, avoiding, accommodating,
compromising, or collaborating. Name what the style is costing them here
and the shift that would serve the stated goals better.`,
		ResponseSchemaFragment: `"conflictStyle": {"style": "competing|avoiding|accommodating|compromising|collaborating", "cost": "what this style is costing", "suggestedShift": "the more serviceable style and how to move there"}`,
	},
	{
		ID:       Restorative,
		Name:     "Restorative Practice",
		Category: CategoryResolution,
		Tier:     TierSecondary,
		PromptFragment: `## Restorative
Where harm has occurred, name it plainly, identify the obligation it
creates, and propose one concrete repair step proportionate to the harm.`,
		ResponseSchemaFragment: `"restorative": {"harm": "the harm done", "obligation": "the obligation the harm creates", "repairStep": "one proportionate repair action"}`,
	},
}
